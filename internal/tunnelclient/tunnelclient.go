// Package tunnelclient implements the client side of the tunnel
// multiplexer's duplex channel, per spec.md §4.8 and §6's CLI contract:
// `vibecheck connect <port>` dials the server, sends connect{target_port},
// then for every inbound http_request forwards an identical request to
// localhost:<port> and replies with http_response.
package tunnelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// maxBodyChars bounds the forwarded response body, per spec.md §6's CLI
// contract (5000-char body cap).
const maxBodyChars = 5000

// localRequestTimeout bounds each forwarded call to the local target.
const localRequestTimeout = 30 * time.Second

// wireMessage mirrors pkg/tunnel's on-wire shape; kept as a separate
// type since the CLI binary does not depend on the server package.
type wireMessage struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id,omitempty"`
	TargetPort int               `json:"target_port,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Method     string            `json:"method,omitempty"`
	Path       string            `json:"path,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
}

// Connect dials serverURL's tunnel endpoint, announces targetPort, and
// forwards every inbound http_request to http://localhost:<targetPort>
// until the channel closes or ctx is cancelled.
func Connect(ctx context.Context, serverURL string, targetPort int) error {
	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return fmt.Errorf("tunnelclient: dial %s: %w", serverURL, err)
	}
	defer conn.CloseNow()

	if err := writeMessage(ctx, conn, wireMessage{Type: "connect", TargetPort: targetPort}); err != nil {
		return fmt.Errorf("tunnelclient: send connect: %w", err)
	}

	created, err := readMessage(ctx, conn)
	if err != nil {
		return fmt.Errorf("tunnelclient: read session_created: %w", err)
	}
	if created.Type != "session_created" {
		return fmt.Errorf("tunnelclient: expected session_created, got %q", created.Type)
	}
	slog.Info("tunnel connected", "session_id", created.SessionID, "target_port", targetPort)

	for {
		msg, err := readMessage(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tunnelclient: channel closed: %w", err)
		}

		switch msg.Type {
		case "ping":
			if err := writeMessage(ctx, conn, wireMessage{Type: "pong"}); err != nil {
				return fmt.Errorf("tunnelclient: send pong: %w", err)
			}
		case "http_request":
			resp := forward(ctx, targetPort, msg)
			if err := writeMessage(ctx, conn, resp); err != nil {
				return fmt.Errorf("tunnelclient: send http_response: %w", err)
			}
		default:
			slog.Warn("tunnelclient: unexpected message type", "type", msg.Type)
		}
	}
}

// forward issues method/path/headers/body against localhost:targetPort
// and builds the http_response wire message, per spec.md §6.
func forward(ctx context.Context, targetPort int, req wireMessage) wireMessage {
	url := fmt.Sprintf("http://localhost:%d%s", targetPort, req.Path)

	reqCtx, cancel := context.WithTimeout(ctx, localRequestTimeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewReader([]byte(req.Body))
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, url, body)
	if err != nil {
		return wireMessage{Type: "http_response", RequestID: req.RequestID, StatusCode: 502, Body: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return wireMessage{Type: "http_response", RequestID: req.RequestID, StatusCode: 502, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyChars))
	bodyStr := string(respBody)
	if len(bodyStr) > maxBodyChars {
		bodyStr = bodyStr[:maxBodyChars]
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return wireMessage{
		Type:       "http_response",
		RequestID:  req.RequestID,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       bodyStr,
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readMessage(ctx context.Context, conn *websocket.Conn) (wireMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return wireMessage{}, err
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return wireMessage{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
