package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"redraft/features/transform"
	"redraft/internal/middleware"
)

// Runner executes one submitted job to completion.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// TaskConsumer pulls transform.task messages and drives each job through the
// pipeline. One message per job; NSQ redelivery is suppressed for anything
// that cannot succeed on a retry.
type TaskConsumer struct {
	runner Runner
}

func NewTaskConsumer(runner Runner) *TaskConsumer {
	return &TaskConsumer{runner: runner}
}

func (h *TaskConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload transform.TaskPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid task message format, dropping", "error", err)
		return nil
	}
	if payload.JobID == "" {
		slog.ErrorContext(ctx, "task message missing job id, dropping")
		return nil
	}

	slog.InfoContext(ctx, "picked up transform task", "job_id", payload.JobID)

	if err := h.runner.Run(ctx, payload.JobID); err != nil {
		if errors.Is(err, transform.ErrJobNotFound) {
			// The job lives in the memory of the submitting process; a message
			// routed elsewhere can never succeed.
			slog.ErrorContext(ctx, "job not registered on this instance, dropping", "job_id", payload.JobID)
			return nil
		}
		slog.ErrorContext(ctx, "job run failed", "job_id", payload.JobID, "error", err)
		return err
	}
	return nil
}
