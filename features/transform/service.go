package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"redraft/internal/budget"
	"redraft/internal/clock"
	"redraft/internal/config"
	"redraft/internal/pipeline"
	"redraft/internal/provider"
	"redraft/internal/text"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotTerminal = errors.New("job has not reached a terminal state")
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// TaskPayload is the message published for each submitted job.
type TaskPayload struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ResultPayload is the message published when a job reaches a terminal state.
type ResultPayload struct {
	JobID         string `json:"job_id"`
	State         string `json:"state"`
	Error         string `json:"error,omitempty"`
	FatalFailures int    `json:"fatal_failures"`
}

// Options carry the pipeline policies shared by every job.
type Options struct {
	ChunkPolicy  text.Policy
	Retry        pipeline.RetryPolicy
	CallTimeout  time.Duration
	PreviewWords int
}

// SubmitRequest is a caller's transformation order. The instructions and
// params are opaque to the pipeline and forwarded to the provider verbatim.
type SubmitRequest struct {
	Text         string          `json:"text"`
	Provider     string          `json:"provider"`
	Instructions string          `json:"instructions"`
	Params       provider.Params `json:"params"`
}

type jobEntry struct {
	mu        sync.Mutex
	job       *Job
	cancel    context.CancelFunc
	cancelled bool // cancel requested before the job started running
}

// Service owns the job registry and drives submitted jobs through the
// pipeline. Jobs for different providers run concurrently; jobs sharing a
// provider serialize through that provider's budget.
type Service struct {
	providers *provider.Registry
	budgets   *budget.Registry
	repo      Repository // optional terminal-job archive
	pub       EventPublisher
	clk       clock.Clock
	opts      Options

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

// NewService wires the pipeline. repo and pub may be nil; without a publisher
// jobs run on a goroutine directly instead of through the task queue.
func NewService(providers *provider.Registry, budgets *budget.Registry, repo Repository, pub EventPublisher, clk clock.Clock, opts Options) *Service {
	if opts.PreviewWords <= 0 {
		opts.PreviewWords = 200
	}
	return &Service{
		providers: providers,
		budgets:   budgets,
		repo:      repo,
		pub:       pub,
		clk:       clk,
		opts:      opts,
		jobs:      make(map[string]*jobEntry),
	}
}

// Submit registers a job and hands it to the dispatcher. The document is not
// chunked yet; chunking failures surface through job status.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if _, err := s.providers.Get(req.Provider); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           uuid.New().String(),
		Provider:     req.Provider,
		Text:         req.Text,
		Instructions: req.Instructions,
		Params:       req.Params,
		State:        StateQueued,
		CreatedAt:    s.clk.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = &jobEntry{job: job}
	s.mu.Unlock()

	slog.InfoContext(ctx, "job submitted", "job_id", job.ID, "provider", job.Provider, "words", text.WordCount(req.Text))

	if s.pub != nil {
		payload, _ := json.Marshal(TaskPayload{JobID: job.ID})
		if err := s.pub.Publish(config.TopicTransformTask, payload); err != nil {
			s.mu.Lock()
			delete(s.jobs, job.ID)
			s.mu.Unlock()
			return nil, fmt.Errorf("publish task: %w", err)
		}
	} else {
		go func() {
			if err := s.Run(context.Background(), job.ID); err != nil {
				slog.Error("job run failed", "job_id", job.ID, "error", err)
			}
		}()
	}

	return job, nil
}

// Run executes one job end to end. It is called by the task dispatcher (or a
// goroutine in single-binary mode) and is safe to call once per job.
func (s *Service) Run(ctx context.Context, jobID string) error {
	entry, err := s.entry(jobID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entry.mu.Lock()
	if entry.cancelled {
		entry.mu.Unlock()
		s.finish(ctx, entry, StateCancelled, "", nil)
		return nil
	}
	entry.cancel = cancel
	job := entry.job
	entry.mu.Unlock()

	s.setState(entry, StateChunking)
	chunks, err := text.Split(job.Text, s.opts.ChunkPolicy)
	if err != nil {
		// EmptyDocument fails the job immediately, no partial work.
		s.finish(ctx, entry, StateFailed, err.Error(), nil)
		return nil
	}

	entry.mu.Lock()
	job.Chunks = chunks
	entry.mu.Unlock()

	inv, err := s.providers.Get(job.Provider)
	if err != nil {
		s.finish(ctx, entry, StateFailed, err.Error(), nil)
		return nil
	}

	s.setState(entry, StateProcessing)
	orch := &pipeline.Orchestrator{
		Invoker:     inv,
		Budget:      s.budgets.For(job.Provider),
		Retry:       s.opts.Retry,
		Clock:       s.clk,
		CallTimeout: s.opts.CallTimeout,
		OnResult: func(r pipeline.Result) {
			entry.mu.Lock()
			job.Results = append(job.Results, r)
			entry.mu.Unlock()
		},
	}

	results, runErr := orch.Run(runCtx, chunks, job.Instructions, job.Params)

	s.setState(entry, StateAggregating)
	final, stats := pipeline.Aggregate(results)

	state := terminalState(results, len(chunks), runErr)
	s.finishAggregated(ctx, entry, state, final, stats)
	return nil
}

func terminalState(results []pipeline.Result, totalChunks int, runErr error) JobState {
	if errors.Is(runErr, pipeline.ErrCancelled) {
		return StateCancelled
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			succeeded++
		}
	}
	switch {
	case succeeded == totalChunks:
		return StateCompleted
	case succeeded == 0:
		return StateFailed
	default:
		return StatePartiallyFailed
	}
}

// GetStatus returns a snapshot of the job's progress.
func (s *Service) GetStatus(jobID string) (Status, error) {
	entry, err := s.entry(jobID)
	if err != nil {
		return Status{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	job := entry.job

	st := Status{
		ID:              job.ID,
		State:           job.State,
		CompletedChunks: len(job.Results),
		TotalChunks:     len(job.Chunks),
	}
	st.PartialPreview = preview(job.Results, s.opts.PreviewWords)
	return st, nil
}

// GetResult returns the final text and statistics; valid only once the job
// is terminal.
func (s *Service) GetResult(jobID string) (Result, error) {
	entry, err := s.entry(jobID)
	if err != nil {
		return Result{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	job := entry.job

	if !job.State.Terminal() {
		return Result{}, ErrJobNotTerminal
	}
	return Result{FinalText: job.Final, Statistics: job.Stats}, nil
}

// Cancel requests cancellation. An in-flight provider call finishes; no
// further chunk starts.
func (s *Service) Cancel(jobID string) error {
	entry, err := s.entry(jobID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.State.Terminal() {
		return nil
	}
	entry.cancelled = true
	if entry.cancel != nil {
		entry.cancel()
	}
	slog.Info("job cancellation requested", "job_id", jobID)
	return nil
}

// Counts reports in-memory jobs per state, for the stats endpoint.
func (s *Service) Counts() map[JobState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[JobState]int)
	for _, e := range s.jobs {
		e.mu.Lock()
		counts[e.job.State]++
		e.mu.Unlock()
	}
	return counts
}

func (s *Service) entry(jobID string) (*jobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return e, nil
}

func (s *Service) setState(entry *jobEntry, state JobState) {
	entry.mu.Lock()
	entry.job.State = state
	entry.mu.Unlock()
}

func (s *Service) finish(ctx context.Context, entry *jobEntry, state JobState, errMsg string, results []pipeline.Result) {
	final, stats := pipeline.Aggregate(results)
	if state == StateFailed && len(results) == 0 {
		final = ""
	}
	entry.mu.Lock()
	entry.job.Error = errMsg
	entry.mu.Unlock()
	s.finishAggregated(ctx, entry, state, final, stats)
}

func (s *Service) finishAggregated(ctx context.Context, entry *jobEntry, state JobState, final string, stats pipeline.Statistics) {
	entry.mu.Lock()
	job := entry.job
	job.State = state
	job.Final = final
	job.Stats = stats
	job.CompletedAt = s.clk.Now()
	snapshot := *job
	entry.mu.Unlock()

	slog.InfoContext(ctx, "job finished",
		"job_id", job.ID, "state", state,
		"chunks", len(snapshot.Stats.Chunks), "fatal_failures", snapshot.Stats.FatalFailures)

	if s.repo != nil {
		if err := s.repo.Save(ctx, archiveFrom(&snapshot)); err != nil {
			slog.ErrorContext(ctx, "failed to archive job", "job_id", job.ID, "error", err)
		}
	}

	if s.pub != nil {
		payload, _ := json.Marshal(ResultPayload{
			JobID:         snapshot.ID,
			State:         string(state),
			Error:         snapshot.Error,
			FatalFailures: snapshot.Stats.FatalFailures,
		})
		if err := s.pub.Publish(config.TopicTransformResult, payload); err != nil {
			slog.ErrorContext(ctx, "failed to publish result event", "job_id", job.ID, "error", err)
		}
	}
}

// preview returns the first n words of the successful output so far.
func preview(results []pipeline.Result, n int) string {
	var words []string
	for _, r := range results {
		if !r.Succeeded {
			continue
		}
		words = append(words, strings.Fields(r.Text)...)
		if len(words) >= n {
			break
		}
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
