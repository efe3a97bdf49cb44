package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"redraft/features/transform"
	"redraft/internal/budget"
	"redraft/internal/middleware"
)

type JobCounter interface {
	Counts() map[transform.JobState]int
}

type ArchiveRepo interface {
	Count(ctx context.Context) (int, error)
	CountByState(ctx context.Context) (map[string]int, error)
}

type Handler struct {
	jobs      JobCounter
	archive   ArchiveRepo // nil when the archive is disabled
	providers []string
	budgets   *budget.Registry
}

func NewHandler(jobs JobCounter, archive ArchiveRepo, providers []string, budgets *budget.Registry) *Handler {
	return &Handler{jobs: jobs, archive: archive, providers: providers, budgets: budgets}
}

type StatsResponse struct {
	Active    map[string]int `json:"active"`
	Archived  map[string]int `json:"archived,omitempty"`
	Total     int            `json:"total_archived"`
	InFlight  map[string]int `json:"in_flight"`
	Providers []string       `json:"providers"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active := make(map[string]int)
	for state, n := range h.jobs.Counts() {
		active[string(state)] = n
	}

	resp := StatsResponse{
		Active:    active,
		InFlight:  make(map[string]int),
		Providers: h.providers,
	}

	if h.archive != nil {
		total, err := h.archive.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count archived jobs", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count archived jobs", http.StatusInternalServerError)
			return
		}
		byState, err := h.archive.CountByState(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count archived jobs by state", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count archived jobs by state", http.StatusInternalServerError)
			return
		}
		resp.Total = total
		resp.Archived = byState
	}

	if h.budgets != nil {
		for _, id := range h.providers {
			resp.InFlight[id] = h.budgets.For(id).InFlight()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
