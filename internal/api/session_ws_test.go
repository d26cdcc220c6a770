//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/generation/generationtest"
	"github.com/ashureev/bbp-discovery/internal/identity"
)

func dialSession(t *testing.T, h http.Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	header := http.Header{}
	header.Set(identity.SessionHeaderName, testSessionID)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func exchange(t *testing.T, ctx context.Context, conn *websocket.Conn, req map[string]any) wsReply {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var reply wsReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	return reply
}

func TestSessionWebSocket(t *testing.T) {
	fake := generationtest.New().
		On(generation.OpSuggestedQuestion, generationtest.Text("What is your current RFQ process?")).
		On(generation.OpFollowups, generationtest.Text("Who approves RFQs?")).
		On(generation.OpUnderstanding, generationtest.Text("summary"))
	ts := newTestServer(t, fake)

	svc := ts.svc
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Get("/ws/session", NewSessionWebSocketHandler(svc, "", false).ServeHTTP)
	conn, ctx := dialSession(t, r)

	reply := exchange(t, ctx, conn, map[string]any{"action": "start"})
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.Session)
	assert.Equal(t, testSessionID, reply.Session.ID)
	assert.Equal(t, "What is your current RFQ process?", reply.Session.CurrentQuestion)

	reply = exchange(t, ctx, conn, map[string]any{"action": "answer", "answer": "Manual email-based RFQs"})
	require.Empty(t, reply.Error)
	assert.Equal(t, domain.StateAwaitingFollowupAnswers, reply.Session.State)

	reply = exchange(t, ctx, conn, map[string]any{"action": "followups", "answers": []string{"Procurement Manager"}})
	require.Empty(t, reply.Error)
	reply = exchange(t, ctx, conn, map[string]any{"action": "continue"})
	require.Empty(t, reply.Error)
	assert.Equal(t, domain.StateCompleted, reply.Session.State)

	reply = exchange(t, ctx, conn, map[string]any{"action": "continue"})
	assert.Equal(t, http.StatusConflict, reply.Status)
	assert.NotEmpty(t, reply.Error)

	reply = exchange(t, ctx, conn, map[string]any{"action": "dance"})
	assert.Equal(t, http.StatusBadRequest, reply.Status)

	reply = exchange(t, ctx, conn, map[string]any{"action": "delete"})
	assert.Empty(t, reply.Error)
	reply = exchange(t, ctx, conn, map[string]any{"action": "get"})
	assert.Equal(t, http.StatusNotFound, reply.Status)
}

func TestSessionWebSocketOriginCheck(t *testing.T) {
	h := NewSessionWebSocketHandler(nil, "https://bbp.example.com", false)

	req := httptest.NewRequest(http.MethodGet, "/ws/session", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://bbp.example.com")
	assert.True(t, h.checkOrigin(req))

	same := NewSessionWebSocketHandler(nil, "", false)
	req = httptest.NewRequest(http.MethodGet, "http://localhost:8000/ws/session", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	assert.True(t, same.checkOrigin(req))
	req.Header.Set("Origin", "http://other:8000")
	assert.False(t, same.checkOrigin(req))
}
