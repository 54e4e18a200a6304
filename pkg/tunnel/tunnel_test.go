package tunnel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecheck/vibecheck/pkg/models"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.TunnelSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*models.TunnelSession{}}
}

func (s *fakeStore) CreateTunnelSession(_ context.Context, t *models.TunnelSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.sessions[t.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateTunnelSessionStatus(_ context.Context, id string, status models.TunnelSessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[id]; ok {
		rec.Status = status
	}
	return nil
}

func (s *fakeStore) TouchTunnelHeartbeat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[id]; ok {
		rec.LastHeartbeatAt = time.Now()
	}
	return nil
}

func (s *fakeStore) status(id string) models.TunnelSessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Status
}

func setupTestRegistry(t *testing.T) (*Registry, *fakeStore, *httptest.Server) {
	t.Helper()
	store := newFakeStore()
	reg := NewRegistry(store)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_ = reg.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return reg, store, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg wireMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestRegistry_ConnectCreatesSession(t *testing.T) {
	reg, store, server := setupTestRegistry(t)
	conn := connectWS(t, server)

	writeMsg(t, conn, wireMessage{Type: "connect", TargetPort: 3000})
	msg := readMsg(t, conn)
	require.Equal(t, "session_created", msg.Type)
	require.NotEmpty(t, msg.SessionID)

	assert.Eventually(t, func() bool { return reg.SessionConnected(msg.SessionID) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.TunnelConnected, store.status(msg.SessionID))
}

func TestRegistry_ProxyRequestRoundTrip(t *testing.T) {
	reg, _, server := setupTestRegistry(t)
	conn := connectWS(t, server)

	writeMsg(t, conn, wireMessage{Type: "connect", TargetPort: 3000})
	created := readMsg(t, conn)
	sessionID := created.SessionID

	assert.Eventually(t, func() bool { return reg.SessionConnected(sessionID) }, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	var proxyErr error
	var respCode int
	go func() {
		defer close(done)
		resp, err := reg.ProxyRequest(context.Background(), sessionID, "GET", "/health", nil, "")
		proxyErr = err
		if resp != nil {
			respCode = resp.StatusCode
		}
	}()

	req := readMsg(t, conn)
	require.Equal(t, "http_request", req.Type)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/health", req.Path)
	require.NotEmpty(t, req.RequestID)

	writeMsg(t, conn, wireMessage{Type: "http_response", RequestID: req.RequestID, StatusCode: 200, Body: "ok"})

	<-done
	require.NoError(t, proxyErr)
	assert.Equal(t, 200, respCode)
}

func TestRegistry_ProxyRequestTimesOutWhenNoResponse(t *testing.T) {
	reg, _, server := setupTestRegistry(t)
	conn := connectWS(t, server)

	writeMsg(t, conn, wireMessage{Type: "connect", TargetPort: 3000})
	created := readMsg(t, conn)
	sessionID := created.SessionID
	assert.Eventually(t, func() bool { return reg.SessionConnected(sessionID) }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := reg.ProxyRequest(ctx, sessionID, "GET", "/never-answered", nil, "")
	require.Error(t, err)
}

func TestRegistry_UnknownSessionFailsImmediately(t *testing.T) {
	reg := NewRegistry(newFakeStore())
	_, err := reg.ProxyRequest(context.Background(), "tun_doesnotexist", "GET", "/", nil, "")
	require.Error(t, err)
}

func TestRegistry_DisconnectMarksSessionDisconnected(t *testing.T) {
	reg, store, server := setupTestRegistry(t)
	conn := connectWS(t, server)

	writeMsg(t, conn, wireMessage{Type: "connect", TargetPort: 3000})
	created := readMsg(t, conn)
	sessionID := created.SessionID
	assert.Eventually(t, func() bool { return reg.SessionConnected(sessionID) }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return !reg.SessionConnected(sessionID) }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return store.status(sessionID) == models.TunnelDisconnected }, time.Second, 10*time.Millisecond)
}
