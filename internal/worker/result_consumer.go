package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"redraft/features/transform"
	"redraft/internal/middleware"
)

// ResultConsumer watches transform.result for terminal jobs. It is the hook
// for downstream notification; today it surfaces outcomes in the logs so
// operators can follow job completions without polling the API.
type ResultConsumer struct{}

func NewResultConsumer() *ResultConsumer {
	return &ResultConsumer{}
}

func (h *ResultConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload transform.ResultPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid result message format, dropping", "error", err)
		return nil
	}

	ctx := middleware.WithCorrelationID(context.Background(), uuid.New().String())

	switch payload.State {
	case string(transform.StateCompleted):
		slog.InfoContext(ctx, "job completed", "job_id", payload.JobID)
	case string(transform.StatePartiallyFailed):
		slog.WarnContext(ctx, "job partially failed", "job_id", payload.JobID, "fatal_failures", payload.FatalFailures)
	default:
		slog.WarnContext(ctx, "job ended without output", "job_id", payload.JobID, "state", payload.State, "error", payload.Error)
	}
	return nil
}
