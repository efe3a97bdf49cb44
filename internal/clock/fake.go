package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually advanced clock for tests. Sleepers block until Advance
// moves simulated time past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan struct{}
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	f.mu.Lock()
	deadline := f.now.Add(d)
	ch := make(chan struct{})
	f.waiters = append(f.waiters, waiter{deadline: deadline, ch: ch})
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Advance moves simulated time forward and wakes expired sleepers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var remaining []waiter
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			close(w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()
}

// BlockUntilWaiters polls until at least n sleepers are parked, so tests can
// advance deterministically.
func (f *Fake) BlockUntilWaiters(n int) {
	for {
		f.mu.Lock()
		count := len(f.waiters)
		f.mu.Unlock()
		if count >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}
