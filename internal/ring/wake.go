package ring

import (
	"context"
	"sync"
	"sync/atomic"
)

// WakeSignal is a broadcast wake primitive. WakeAll releases every waiter
// holding a handle taken before the call; handles taken afterwards are not
// affected. Nothing is remembered between wakes.
//
// Each generation is a channel that WakeAll closes and replaces. A Waiter
// captured before a WakeAll always observes that close, even if it only
// starts waiting after the wake has happened.
type WakeSignal struct {
	mu      sync.Mutex
	ch      chan struct{}
	waiting atomic.Int64
}

// NewWakeSignal creates a wake signal with an open generation.
func NewWakeSignal() *WakeSignal {
	return &WakeSignal{ch: make(chan struct{})}
}

// Waiter returns a handle on the current generation.
func (w *WakeSignal) Waiter() Waiter {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()
	return Waiter{ch: ch, sig: w}
}

// WakeAll releases every handle on the current generation and starts a new one.
// Safe to call with no waiters.
func (w *WakeSignal) WakeAll() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}

// Waiting returns the number of goroutines currently blocked in Waiter.Wait.
func (w *WakeSignal) Waiting() int64 {
	return w.waiting.Load()
}

// Waiter is a handle on one wake generation.
type Waiter struct {
	ch  <-chan struct{}
	sig *WakeSignal
}

// Done returns a channel closed by the wake this handle is bound to.
func (h Waiter) Done() <-chan struct{} {
	return h.ch
}

// Wait blocks until the bound generation is woken or ctx is done.
// Returns ctx.Err() on cancellation, nil on wake.
func (h Waiter) Wait(ctx context.Context) error {
	select {
	case <-h.ch:
		return nil
	default:
	}

	if h.sig != nil {
		h.sig.waiting.Add(1)
		defer h.sig.waiting.Add(-1)
	}

	select {
	case <-h.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
