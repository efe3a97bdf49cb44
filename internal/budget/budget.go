package budget

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"redraft/internal/clock"
)

// ErrWaitTooLong is returned when the wait for window capacity would exceed
// the configured maximum. Callers classify it as a transient chunk failure
// rather than blocking indefinitely.
var ErrWaitTooLong = errors.New("budget wait exceeds maximum")

// Options configure one provider's throughput budget.
type Options struct {
	// RequestsPerWindow is the request quota per rolling window.
	RequestsPerWindow int

	// Window is the rolling window size.
	Window time.Duration

	// MinSpacing is the fixed pause enforced between consecutive requests to
	// the same provider, regardless of remaining quota. Providers rate-limit
	// on burstiness, not just volume.
	MinSpacing time.Duration

	// MaxWait caps how long Acquire will block for window capacity. Zero
	// means no cap.
	MaxWait time.Duration

	// TokensPerWindow optionally caps token volume per window. Zero disables
	// token accounting.
	TokensPerWindow int
}

type grant struct {
	at     time.Time
	tokens int
}

// Budget tracks a single provider's remaining allowance over a rolling
// window. It is safe for concurrent use: multiple jobs targeting the same
// provider share one instance and serialize through it.
type Budget struct {
	opts   Options
	clk    clock.Clock
	spacer *rate.Limiter

	mu     sync.Mutex
	grants []grant
}

func New(opts Options, clk clock.Clock) *Budget {
	spacing := rate.Inf
	if opts.MinSpacing > 0 {
		spacing = rate.Every(opts.MinSpacing)
	}
	// The limiter is fed timestamps from clk rather than left to read the
	// wall clock itself, keeping the spacing gate fast-forwardable.
	return &Budget{
		opts:   opts,
		clk:    clk,
		spacer: rate.NewLimiter(spacing, 1),
	}
}

// TryAcquire reserves capacity for a request costing an estimated number of
// tokens. It returns (0, true) when granted, or the minimum wait until
// capacity frees up: the time remaining until the oldest reservation in the
// window expires.
func (b *Budget) TryAcquire(tokens int) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()
	b.prune(now)

	if len(b.grants) >= b.opts.RequestsPerWindow {
		return b.oldestExpiry(now), false
	}
	if b.opts.TokensPerWindow > 0 && b.windowTokens()+tokens > b.opts.TokensPerWindow && len(b.grants) > 0 {
		return b.oldestExpiry(now), false
	}

	b.grants = append(b.grants, grant{at: now, tokens: tokens})
	return 0, true
}

// Release records the actual token cost of the most recent reservation once
// the response is known. Request-count accounting is unaffected.
func (b *Budget) Release(actualTokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.grants) == 0 {
		return
	}
	b.grants[len(b.grants)-1].tokens = actualTokens
}

// Acquire blocks until capacity is granted, ctx is done, or the computed wait
// exceeds MaxWait. The inter-request spacing gate runs first, then the window
// quota is polled. Every suspension goes through the injected clock so tests
// can fast-forward both gates.
func (b *Budget) Acquire(ctx context.Context, tokens int) error {
	now := b.clk.Now()
	res := b.spacer.ReserveN(now, 1)
	if wait := res.DelayFrom(now); wait > 0 {
		if err := b.clk.Sleep(ctx, wait); err != nil {
			res.CancelAt(now)
			return err
		}
	}

	for {
		wait, ok := b.TryAcquire(tokens)
		if ok {
			return nil
		}
		if b.opts.MaxWait > 0 && wait > b.opts.MaxWait {
			return ErrWaitTooLong
		}
		if err := b.clk.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InFlight reports the number of reservations currently inside the window.
func (b *Budget) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.clk.Now())
	return len(b.grants)
}

func (b *Budget) prune(now time.Time) {
	cutoff := now.Add(-b.opts.Window)
	i := 0
	for i < len(b.grants) && !b.grants[i].at.After(cutoff) {
		i++
	}
	b.grants = b.grants[i:]
}

func (b *Budget) oldestExpiry(now time.Time) time.Duration {
	if len(b.grants) == 0 {
		return 0
	}
	return b.grants[0].at.Add(b.opts.Window).Sub(now)
}

func (b *Budget) windowTokens() int {
	total := 0
	for _, g := range b.grants {
		total += g.tokens
	}
	return total
}

// Registry hands out one shared Budget per provider id. Jobs targeting the
// same provider pace through the same instance.
type Registry struct {
	opts Options
	clk  clock.Clock

	mu      sync.Mutex
	budgets map[string]*Budget
}

func NewRegistry(opts Options, clk clock.Clock) *Registry {
	return &Registry{opts: opts, clk: clk, budgets: make(map[string]*Budget)}
}

func (r *Registry) For(providerID string) *Budget {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.budgets[providerID]
	if !ok {
		b = New(r.opts, r.clk)
		r.budgets[providerID] = b
	}
	return b
}
