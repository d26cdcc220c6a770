package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/domain"
)

// ProcessAdvisor generates summaries and recommendations from a transcript.
type ProcessAdvisor interface {
	GenerateUnderstanding(ctx context.Context, t *domain.Transcript) (string, error)
	ReviseUnderstanding(ctx context.Context, current, correction string) (string, error)
	GenerateRecommendation(ctx context.Context, t *domain.Transcript) (string, error)
}

// ProcessHandler serves the stateless process endpoints and the user choice
// mutators. Every failure is a 500 with {"detail": ...}.
type ProcessHandler struct {
	advisor ProcessAdvisor
	choices *discovery.ChoiceRegistry
}

// NewProcessHandler creates a ProcessHandler.
func NewProcessHandler(a ProcessAdvisor, choices *discovery.ChoiceRegistry) *ProcessHandler {
	return &ProcessHandler{advisor: a, choices: choices}
}

// RegisterRoutes mounts the process endpoints.
func (h *ProcessHandler) RegisterRoutes(r chi.Router) {
	r.Post("/generate_process_understanding", h.GenerateUnderstanding)
	r.Post("/update_process_understanding", h.UpdateUnderstanding)
	r.Post("/generate_process_recommendation", h.GenerateRecommendation)

	r.Post("/update_sap_product", h.updateChoice(domain.ChoiceProduct))
	r.Post("/update_module", h.updateChoice(domain.ChoiceModule))
	r.Post("/update_activity", h.updateChoice(domain.ChoiceActivity))
	r.Post("/update_bbp_generation_journey", h.updateChoice(domain.ChoiceJourney))
	r.Post("/update_customer_context", h.UpdateCustomerContext)
	r.Get("/api/choices", h.GetChoices)
}

type historyRequest struct {
	History *domain.Transcript `json:"history"`
}

type correctionRequest struct {
	History              *domain.Transcript `json:"history"`
	Correction           string             `json:"correction"`
	CurrentUnderstanding string             `json:"current_understanding"`
}

var errNoHistory = errors.New("history is required")

func decodeHistory(r *http.Request) (*domain.Transcript, error) {
	var req historyRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.History == nil {
		return nil, errNoHistory
	}
	return req.History, nil
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("Process endpoint failed", "op", op, "error", err)
	Error(w, http.StatusInternalServerError, err.Error())
}

// GenerateUnderstanding handles POST /generate_process_understanding.
func (h *ProcessHandler) GenerateUnderstanding(w http.ResponseWriter, r *http.Request) {
	history, err := decodeHistory(r)
	if err != nil {
		internalError(w, "generate_process_understanding", err)
		return
	}
	text, err := h.advisor.GenerateUnderstanding(r.Context(), history)
	if err != nil {
		internalError(w, "generate_process_understanding", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"process_understanding": text})
}

// UpdateUnderstanding handles POST /update_process_understanding. The
// revision works from the current text and the correction; history is
// accepted for compatibility.
func (h *ProcessHandler) UpdateUnderstanding(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		internalError(w, "update_process_understanding", err)
		return
	}
	if req.History == nil {
		internalError(w, "update_process_understanding", errNoHistory)
		return
	}
	text, err := h.advisor.ReviseUnderstanding(r.Context(), req.CurrentUnderstanding, req.Correction)
	if err != nil {
		internalError(w, "update_process_understanding", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"updated_process_understanding": text})
}

// GenerateRecommendation handles POST /generate_process_recommendation.
func (h *ProcessHandler) GenerateRecommendation(w http.ResponseWriter, r *http.Request) {
	history, err := decodeHistory(r)
	if err != nil {
		internalError(w, "generate_process_recommendation", err)
		return
	}
	text, err := h.advisor.GenerateRecommendation(r.Context(), history)
	if err != nil {
		internalError(w, "generate_process_recommendation", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"process_recommendation": text})
}

// updateChoice handles the single-value mutators, whose body is a bare JSON string.
func (h *ProcessHandler) updateChoice(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var value string
		if err := decodeJSON(r, &value); err != nil {
			Error(w, http.StatusInternalServerError, "Update failed: "+err.Error())
			return
		}
		if err := h.choices.Set(key, value); err != nil {
			Error(w, http.StatusInternalServerError, "Update failed: "+err.Error())
			return
		}
		slog.Info("User choice updated", "key", key, "value", value)
		JSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// UpdateCustomerContext handles POST /update_customer_context.
func (h *ProcessHandler) UpdateCustomerContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Context map[string]string `json:"context"`
	}
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusInternalServerError, "Update failed: "+err.Error())
		return
	}
	h.choices.Merge(req.Context)
	slog.Info("Customer context updated", "keys", len(req.Context))
	JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GetChoices returns the defaults new sessions start from.
func (h *ProcessHandler) GetChoices(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.choices.Snapshot())
}
