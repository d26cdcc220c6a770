package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/identity"
)

// Snapshot is the client view of a discovery session.
type Snapshot struct {
	*domain.DiscoverySession
	CurrentSubprocess string `json:"current_subprocess"`
}

// NewSnapshot wraps s for encoding.
func NewSnapshot(s *domain.DiscoverySession) Snapshot {
	return Snapshot{DiscoverySession: s, CurrentSubprocess: s.CurrentSubprocess()}
}

// SessionHandler drives the caller's discovery session over HTTP. The
// session is chosen by the identity middleware.
type SessionHandler struct {
	svc *discovery.Service
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *discovery.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes mounts the session API.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Start)
		r.Delete("/", h.Delete)
		r.Post("/question", h.RetryQuestion)
		r.Post("/answer", h.SubmitAnswer)
		r.Put("/followups", h.SetFollowups)
		r.Post("/continue", h.Continue)
		r.Post("/summary", h.ReviseSummary)
		r.Post("/recommendation", h.Recommend)
		r.Post("/recommendation/revise", h.ReviseRecommendation)
		r.Patch("/choices", h.UpdateChoices)
		r.Get("/export", h.Export)
	})
}

// respond writes the session snapshot, or the error when there is one.
func respond(w http.ResponseWriter, r *http.Request, s *domain.DiscoverySession, err error) {
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Session request failed",
				"session_id", identity.SessionIDFromContext(r.Context()),
				"path", r.URL.Path, "ip", identity.IPFromRequest(r), "error", err)
		}
		Error(w, status, err.Error())
		return
	}
	JSON(w, http.StatusOK, NewSnapshot(s))
}

func sessionID(r *http.Request) string {
	return identity.SessionIDFromContext(r.Context())
}

// Get handles GET /api/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context(), sessionID(r))
	respond(w, r, s, err)
}

// Start handles POST /api/session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choices map[string]string `json:"choices"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.Start(r.Context(), sessionID(r), req.Choices)
	respond(w, r, s, err)
}

// Delete handles DELETE /api/session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), sessionID(r)); err != nil {
		ErrorFor(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RetryQuestion handles POST /api/session/question.
func (h *SessionHandler) RetryQuestion(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.RetryQuestion(r.Context(), sessionID(r))
	respond(w, r, s, err)
}

// SubmitAnswer handles POST /api/session/answer.
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.SubmitAnswer(r.Context(), sessionID(r), req.Answer)
	respond(w, r, s, err)
}

// SetFollowups handles PUT /api/session/followups.
func (h *SessionHandler) SetFollowups(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []string `json:"answers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.SetFollowups(r.Context(), sessionID(r), req.Answers)
	respond(w, r, s, err)
}

// Continue handles POST /api/session/continue.
func (h *SessionHandler) Continue(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Continue(r.Context(), sessionID(r))
	respond(w, r, s, err)
}

type correctionBody struct {
	Correction string `json:"correction"`
}

// ReviseSummary handles POST /api/session/summary.
func (h *SessionHandler) ReviseSummary(w http.ResponseWriter, r *http.Request) {
	var req correctionBody
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.ReviseSummary(r.Context(), sessionID(r), req.Correction)
	respond(w, r, s, err)
}

// Recommend handles POST /api/session/recommendation.
func (h *SessionHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Recommend(r.Context(), sessionID(r))
	respond(w, r, s, err)
}

// ReviseRecommendation handles POST /api/session/recommendation/revise.
func (h *SessionHandler) ReviseRecommendation(w http.ResponseWriter, r *http.Request) {
	var req correctionBody
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.ReviseRecommendation(r.Context(), sessionID(r), req.Correction)
	respond(w, r, s, err)
}

// UpdateChoices handles PATCH /api/session/choices.
func (h *SessionHandler) UpdateChoices(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		ErrorFor(w, err)
		return
	}
	s, err := h.svc.UpdateChoices(r.Context(), sessionID(r), req)
	respond(w, r, s, err)
}

// Export handles GET /api/session/export and returns markdown.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context(), sessionID(r))
	if err != nil {
		ErrorFor(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="bbp-discovery.md"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(discovery.ExportMarkdown(s))); err != nil {
		slog.Debug("Failed to write export", "error", err)
	}
}
