package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"redraft/internal/budget"
	"redraft/internal/clock"
	"redraft/internal/provider"
	"redraft/internal/text"
)

// ErrCancelled is returned by Run when the job's context is cancelled. Chunks
// already terminal keep their results; no further chunk starts.
var ErrCancelled = errors.New("job cancelled")

// ChunkState is the per-chunk state machine:
// Pending → InFlight → {Succeeded, Retrying, FailedFatal};
// Retrying re-enters Pending once the backoff delay elapses.
type ChunkState string

const (
	ChunkPending     ChunkState = "pending"
	ChunkInFlight    ChunkState = "in_flight"
	ChunkSucceeded   ChunkState = "succeeded"
	ChunkRetrying    ChunkState = "retrying"
	ChunkFailedFatal ChunkState = "failed_fatal"
)

// Attempt records one try at transforming one chunk. Kept on the result for
// statistics only.
type Attempt struct {
	Number    int           `json:"number"`
	StartedAt time.Time     `json:"started_at"`
	Latency   time.Duration `json:"latency"`
	Outcome   string        `json:"outcome"`
}

// Result is the terminal outcome for one chunk.
type Result struct {
	Index          int       `json:"index"`
	Text           string    `json:"text"`
	InputWords     int       `json:"input_words"`
	OutputWords    int       `json:"output_words"`
	ExpansionRatio float64   `json:"expansion_ratio"`
	Attempts       []Attempt `json:"attempts,omitempty"`
	Succeeded      bool      `json:"succeeded"`
	Error          string    `json:"error,omitempty"`
}

// Retried reports whether the chunk needed more than one attempt.
func (r Result) Retried() bool {
	return len(r.Attempts) > 1
}

// Orchestrator submits a job's chunks to a provider, pacing through the
// shared budget and recovering transient failures per the retry policy.
// Chunks are processed strictly in index order: the shared per-provider
// pacing gate makes intra-job concurrency pointless, and serial processing
// keeps result ordering deterministic.
type Orchestrator struct {
	Invoker provider.Invoker
	Budget  *budget.Budget
	Retry   RetryPolicy
	Clock   clock.Clock

	// CallTimeout bounds each provider round trip. Exceeding it is a
	// transient failure, not a hang.
	CallTimeout time.Duration

	// OnResult, when set, observes each terminal chunk result in index order.
	OnResult func(Result)

	// OnState, when set, observes per-chunk state transitions.
	OnState func(index int, st ChunkState)
}

// Run processes chunks in order and returns their terminal results. A fatal
// chunk failure never aborts the remaining chunks; only cancellation stops
// the loop early, returning ErrCancelled along with the results recorded so
// far.
func (o *Orchestrator) Run(ctx context.Context, chunks []text.Chunk, instructions string, params provider.Params) ([]Result, error) {
	results := make([]Result, 0, len(chunks))

	for _, ch := range chunks {
		// Cancellation gate: checked before any chunk starts.
		if ctx.Err() != nil {
			return results, ErrCancelled
		}

		res, err := o.processChunk(ctx, ch, instructions, params)
		if err != nil {
			return results, ErrCancelled
		}

		results = append(results, res)
		if o.OnResult != nil {
			o.OnResult(res)
		}
	}
	return results, nil
}

func (o *Orchestrator) processChunk(ctx context.Context, ch text.Chunk, instructions string, params provider.Params) (Result, error) {
	res := Result{Index: ch.Index, InputWords: ch.Words}
	o.transition(ch.Index, ChunkPending)

	for attempt := 1; ; attempt++ {
		if err := o.Budget.Acquire(ctx, ch.Words); err != nil {
			if !errors.Is(err, budget.ErrWaitTooLong) {
				return Result{}, err
			}
			// Budget exhaustion beyond the wait cap degrades to a transient
			// failure instead of blocking forever.
			slog.WarnContext(ctx, "budget wait too long", "chunk", ch.Index, "attempt", attempt)
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, StartedAt: o.Clock.Now(), Outcome: "failed_transient"})
			if o.Retry.ShouldRetry(attempt) {
				if err := o.backoff(ctx, ch.Index, attempt); err != nil {
					return Result{}, err
				}
				continue
			}
			return o.fail(ctx, res, err), nil
		}

		o.transition(ch.Index, ChunkInFlight)
		started := o.Clock.Now()
		out, err := o.invoke(ctx, ch.Text, instructions, params)
		latency := o.Clock.Now().Sub(started)

		if err == nil {
			o.Budget.Release(text.WordCount(out))
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, StartedAt: started, Latency: latency, Outcome: "succeeded"})
			res.Text = out
			res.OutputWords = text.WordCount(out)
			if res.InputWords > 0 {
				res.ExpansionRatio = float64(res.OutputWords) / float64(res.InputWords)
			}
			res.Succeeded = true
			o.transition(ch.Index, ChunkSucceeded)
			slog.InfoContext(ctx, "chunk transformed", "chunk", ch.Index, "attempt", attempt, "input_words", res.InputWords, "output_words", res.OutputWords)
			return res, nil
		}

		if provider.IsTransient(err) && o.Retry.ShouldRetry(attempt) {
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, StartedAt: started, Latency: latency, Outcome: "failed_transient"})
			slog.WarnContext(ctx, "transient chunk failure, retrying", "chunk", ch.Index, "attempt", attempt, "error", err)
			if err := o.backoff(ctx, ch.Index, attempt); err != nil {
				return Result{}, err
			}
			continue
		}

		outcome := "failed_fatal"
		if provider.IsTransient(err) {
			outcome = "failed_transient"
		}
		res.Attempts = append(res.Attempts, Attempt{Number: attempt, StartedAt: started, Latency: latency, Outcome: outcome})
		return o.fail(ctx, res, err), nil
	}
}

// invoke runs one provider round trip. The attempt finishes even if the job
// is cancelled mid-call, so the external request is not leaked; only the
// bounded timeout cuts it short.
func (o *Orchestrator) invoke(ctx context.Context, chunkText, instructions string, params provider.Params) (string, error) {
	callCtx := context.WithoutCancel(ctx)
	if o.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, o.CallTimeout)
		defer cancel()
	}
	return o.Invoker.Transform(callCtx, chunkText, instructions, params)
}

// backoff waits out the computed delay; the chunk is Retrying until the wake
// time, then re-enters Pending. Cancellation during the wait stops the job.
func (o *Orchestrator) backoff(ctx context.Context, index, attempt int) error {
	o.transition(index, ChunkRetrying)
	if err := o.Clock.Sleep(ctx, o.Retry.Backoff(attempt)); err != nil {
		return err
	}
	o.transition(index, ChunkPending)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, res Result, err error) Result {
	res.Succeeded = false
	res.Error = err.Error()
	o.transition(res.Index, ChunkFailedFatal)
	slog.ErrorContext(ctx, "chunk failed", "chunk", res.Index, "attempts", len(res.Attempts), "error", err)
	return res
}

func (o *Orchestrator) transition(index int, st ChunkState) {
	if o.OnState != nil {
		o.OnState(index, st)
	}
}
