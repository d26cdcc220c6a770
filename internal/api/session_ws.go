package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/identity"
)

// wsRequest is one client frame on /ws/session.
type wsRequest struct {
	Action     string            `json:"action"`
	Answer     string            `json:"answer,omitempty"`
	Answers    []string          `json:"answers,omitempty"`
	Correction string            `json:"correction,omitempty"`
	Choices    map[string]string `json:"choices,omitempty"`
}

// wsReply is one server frame. Exactly one of Session or Error is set,
// except for a start whose first question failed, which carries both.
type wsReply struct {
	Action  string    `json:"action"`
	Session *Snapshot `json:"session,omitempty"`
	Error   string    `json:"error,omitempty"`
	Status  int       `json:"status,omitempty"`
}

// SessionWebSocketHandler serves the session actions over a websocket.
// Requests on one connection are handled in order.
type SessionWebSocketHandler struct {
	svc           *discovery.Service
	allowedOrigin string
	isDev         bool
}

// NewSessionWebSocketHandler creates a SessionWebSocketHandler.
func NewSessionWebSocketHandler(svc *discovery.Service, allowedOrigin string, isDev bool) *SessionWebSocketHandler {
	return &SessionWebSocketHandler{svc: svc, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *SessionWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx := r.Context()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var req wsRequest
		var reply wsReply
		if err := json.Unmarshal(message, &req); err != nil {
			reply = errorReply("", fmt.Errorf("%w: invalid frame: %v", domain.ErrValidation, err))
		} else {
			reply = h.dispatch(ctx, sessionID, req)
		}
		if err := writeJSON(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *SessionWebSocketHandler) dispatch(ctx context.Context, id string, req wsRequest) wsReply {
	var (
		s   *domain.DiscoverySession
		err error
	)
	switch req.Action {
	case "get":
		s, err = h.svc.Get(ctx, id)
	case "start":
		s, err = h.svc.Start(ctx, id, req.Choices)
	case "question":
		s, err = h.svc.RetryQuestion(ctx, id)
	case "answer":
		s, err = h.svc.SubmitAnswer(ctx, id, req.Answer)
	case "followups":
		s, err = h.svc.SetFollowups(ctx, id, req.Answers)
	case "continue":
		s, err = h.svc.Continue(ctx, id)
	case "summary":
		s, err = h.svc.ReviseSummary(ctx, id, req.Correction)
	case "recommendation":
		s, err = h.svc.Recommend(ctx, id)
	case "revise_recommendation":
		s, err = h.svc.ReviseRecommendation(ctx, id, req.Correction)
	case "choices":
		s, err = h.svc.UpdateChoices(ctx, id, req.Choices)
	case "delete":
		if err = h.svc.Delete(ctx, id); err == nil {
			return wsReply{Action: req.Action}
		}
	default:
		err = fmt.Errorf("%w: unknown action %q", domain.ErrValidation, req.Action)
	}

	reply := wsReply{Action: req.Action}
	if err != nil {
		reply = errorReply(req.Action, err)
	}
	if s != nil {
		snap := NewSnapshot(s)
		reply.Session = &snap
	}
	return reply
}

func errorReply(action string, err error) wsReply {
	return wsReply{Action: action, Error: err.Error(), Status: StatusFor(err)}
}

func (h *SessionWebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	// Without a configured frontend only the serving host may connect.
	if h.allowedOrigin == "" {
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
