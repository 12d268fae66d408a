package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/haku/internal/aicontext"
	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

// Handler exposes the orchestration core over HTTP. This is host glue:
// the core's contract is the in-process API, and this surface simply
// forwards to it.
type Handler struct {
	orchestrator *domain.Orchestrator
	contexts     *aicontext.Manager
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(orchestrator *domain.Orchestrator, contexts *aicontext.Manager) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		contexts:     contexts,
	}
}

// chatRequest is the body of POST /v1/chat.
type chatRequest struct {
	Message string `json:"message"`
}

// HandleCompletion processes completion requests.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var query domain.CompletionQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.CompleteCode(r.Context(), &query)
	h.writeResult(w, r, result, err)
}

// HandleChat processes chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.Chat(r.Context(), req.Message)
	h.writeResult(w, r, result, err)
}

// HandleCodeEdit processes code edit requests.
func (h *Handler) HandleCodeEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.CodeEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.EditCode(r.Context(), &req)
	h.writeResult(w, r, result, err)
}

// HandleTask processes higher-level operation requests.
func (h *Handler) HandleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.PerformTask(r.Context(), &req)
	h.writeResult(w, r, result, err)
}

// HandleContext serves the ambient AI context: GET reads it, PUT applies
// an overlay update, DELETE clears context and history.
func (h *Handler) HandleContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, r, h.contexts.Get())

	case http.MethodPut:
		var update domain.AiContext
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		h.contexts.Set(ctx, update)
		h.writeJSON(w, r, h.contexts.Get())

	case http.MethodDelete:
		h.contexts.Clear(ctx)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleContextHistory returns retained context snapshots, oldest first.
func (h *Handler) HandleContextHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, r, h.contexts.History())
}

// HandleHealth reports liveness and whether any provider is registered.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, map[string]any{
		"status":  "ok",
		"enabled": h.orchestrator.IsEnabled(),
	})
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, result any, err error) {
	logger := observability.FromContext(r.Context())

	if err != nil {
		logger.Error("dispatch failed", observability.Error(err))

		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoProviders) {
			status = http.StatusServiceUnavailable
		}

		http.Error(w, err.Error(), status)
		return
	}

	h.writeJSON(w, r, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.FromContext(r.Context()).Error("failed to encode response",
			observability.Error(err))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
