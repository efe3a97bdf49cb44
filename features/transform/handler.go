package transform

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"redraft/internal/middleware"
	"redraft/internal/provider"
	"redraft/internal/text"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Submit accepts a document and transformation instructions and enqueues the
// job. The response is immediate; progress is polled via Status.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "text is required", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "provider is required", http.StatusBadRequest)
		return
	}
	if req.Instructions == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "instructions is required", http.StatusBadRequest)
		return
	}

	job, err := h.service.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			h.writeError(r.Context(), w, "UNKNOWN_PROVIDER", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("job submission failed", "error", err, "provider", req.Provider)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"id":          job.ID,
			"state":       job.State,
			"provider":    job.Provider,
			"input_words": text.WordCount(req.Text),
			"created_at":  job.CreatedAt,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.service.GetStatus(id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": status}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Result returns the final document; 409 until the job reaches a terminal
// state.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.service.GetResult(id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrJobNotTerminal) {
			h.writeError(r.Context(), w, "NOT_READY", "Job is still in progress", http.StatusConflict)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Cancel(id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
