// Package tunnel implements the tunnel multiplexer, per spec.md §4.8: a
// process-wide registry of live duplex WebSocket channels to clients
// that forward-proxy requests to a private target, plus request/response
// correlation for proxy_request.
package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vibecheck/vibecheck/internal/ids"
	"github.com/vibecheck/vibecheck/pkg/httpprobe"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// proxyTimeout bounds how long proxy_request waits for a matching
// http_response before failing with TARGET_UNREACHABLE, per spec.md §4.8.
const proxyTimeout = 15 * time.Second

// heartbeatInterval is how often the multiplexer pings a connected client.
const heartbeatInterval = 30 * time.Second

// wireMessage is the on-wire JSON shape for every direction of the
// tunnel's duplex channel, per spec.md §4.8.
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

// Store is the persistence surface the multiplexer needs, satisfied by
// *database.Client.
type Store interface {
	CreateTunnelSession(ctx context.Context, s *models.TunnelSession) error
	UpdateTunnelSessionStatus(ctx context.Context, id string, status models.TunnelSessionStatus) error
	TouchTunnelHeartbeat(ctx context.Context, id string) error
}

// session is one live duplex channel to a connected client.
type session struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
}

func (s *session) send(ctx context.Context, msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal tunnel message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// awaiter is a pending proxy_request waiting for its matching
// http_response.
type awaiter chan wireMessage

// Registry is the process-wide tunnel session + pending-request table
// described by spec.md §4.8 and §5 ("In-memory shared state").
type Registry struct {
	store Store

	mu       sync.RWMutex
	sessions map[string]*session

	pendingMu sync.Mutex
	pending   map[string]awaiter
}

// NewRegistry constructs an empty Registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:    store,
		sessions: make(map[string]*session),
		pending:  make(map[string]awaiter),
	}
}

// HandleConnection manages one client's duplex channel end to end: reads
// the mandatory first connect{target_port} message, creates and
// registers the session, then loops reading http_response/pong messages
// until the connection closes. Blocks until the channel closes.
func (r *Registry) HandleConnection(ctx context.Context, conn *websocket.Conn) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("tunnel: read connect message: %w", err)
	}
	var first wireMessage
	if err := json.Unmarshal(data, &first); err != nil {
		return fmt.Errorf("tunnel: decode connect message: %w", err)
	}
	if first.Type != "connect" {
		return fmt.Errorf("tunnel: expected connect message, got %q", first.Type)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{id: ids.New(ids.PrefixTunnel), conn: conn, ctx: sessCtx, cancel: cancel}

	now := time.Now()
	rec := &models.TunnelSession{
		ID:              sess.id,
		TargetPort:      first.TargetPort,
		Status:          models.TunnelConnected,
		CreatedAt:       now,
		LastHeartbeatAt: now,
	}
	if err := r.store.CreateTunnelSession(ctx, rec); err != nil {
		cancel()
		return fmt.Errorf("tunnel: create session: %w", err)
	}

	r.register(sess)
	defer r.unregister(sess)

	if err := sess.send(ctx, wireMessage{Type: "session_created", SessionID: sess.id}); err != nil {
		return fmt.Errorf("tunnel: send session_created: %w", err)
	}

	go r.heartbeat(sess)

	for {
		_, data, err := conn.Read(sessCtx)
		if err != nil {
			return nil
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("tunnel: invalid client message", "session_id", sess.id, "error", err)
			continue
		}
		r.handleClientMessage(sessCtx, sess, msg)
	}
}

func (r *Registry) handleClientMessage(ctx context.Context, sess *session, msg wireMessage) {
	switch msg.Type {
	case "http_response":
		r.pendingMu.Lock()
		ch, ok := r.pending[msg.RequestID]
		r.pendingMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	case "pong":
		if err := r.store.TouchTunnelHeartbeat(ctx, sess.id); err != nil {
			slog.Warn("tunnel: heartbeat update failed", "session_id", sess.id, "error", err)
		}
	}
}

func (r *Registry) heartbeat(sess *session) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if err := sess.send(sess.ctx, wireMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

func (r *Registry) register(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// unregister removes a session and marks it disconnected. Any awaiters
// still pending for this session time out normally, per spec.md §4.8.
func (r *Registry) unregister(s *session) {
	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()

	s.cancel()
	_ = s.conn.Close(websocket.StatusNormalClosure, "")

	if err := r.store.UpdateTunnelSessionStatus(context.Background(), s.id, models.TunnelDisconnected); err != nil {
		slog.Warn("tunnel: mark disconnected failed", "session_id", s.id, "error", err)
	}
}

// ProxyRequest implements spec.md §4.8's proxy_request: looks up the
// session's live channel, sends an http_request message, and waits up to
// 15s for the matching http_response.
func (r *Registry) ProxyRequest(ctx context.Context, sessionID, method, path string, headers map[string]string, body string) (*httpprobe.Response, error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, vcerrors.TunnelNotConnected(sessionID)
	}

	reqID := ids.New(ids.PrefixRequest)
	ch := make(awaiter, 1)
	r.pendingMu.Lock()
	r.pending[reqID] = ch
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, reqID)
		r.pendingMu.Unlock()
	}()

	if err := sess.send(ctx, wireMessage{
		Type: "http_request", RequestID: reqID, Method: method, Path: path, Headers: headers, Body: body,
	}); err != nil {
		return nil, vcerrors.TargetUnreachable(path, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, proxyTimeout)
	defer cancel()

	select {
	case msg := <-ch:
		headerMap := make(http.Header, len(msg.Headers))
		for k, v := range msg.Headers {
			headerMap.Set(k, v)
		}
		return &httpprobe.Response{
			StatusCode: msg.StatusCode,
			Headers:    headerMap,
			Body:       msg.Body,
			URL:        httpprobe.JoinURL(fmt.Sprintf("tunnel://%s", sessionID), path),
		}, nil
	case <-waitCtx.Done():
		return nil, vcerrors.TargetUnreachable(path, waitCtx.Err())
	}
}

// SessionConnected reports whether sessionID currently has a live
// channel, used by the robust scan preconditions check (spec.md §4.3).
func (r *Registry) SessionConnected(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// ActiveSessions returns the count of live duplex channels.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
