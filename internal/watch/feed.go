package watch

import (
	"context"
	"sync"

	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/ring"
)

// Feed collects what the dashboard shows: every text line (kept in a local
// bounded store) and the most recent tuple. Safe for concurrent use.
type Feed struct {
	lines *ring.Store[string]

	mu      sync.Mutex
	latest  record.Tuple
	tuples  int64
	lastErr error
}

// NewFeed creates a feed keeping the last capacity text lines.
// If capacity ≤ 0, ring.DefaultCapacity is used.
func NewFeed(capacity int) *Feed {
	return &Feed{lines: ring.New("", capacity)}
}

// PushTuple records t as the latest tuple.
func (f *Feed) PushTuple(t record.Tuple) {
	f.mu.Lock()
	f.latest = t
	f.tuples++
	f.mu.Unlock()
}

// PushLine appends a text line.
func (f *Feed) PushLine(line string) {
	f.lines.Push(line)
}

// SetError records the reason a tail ended.
func (f *Feed) SetError(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}

// Lines returns the retained lines and the total number ever received.
func (f *Feed) Lines() ([]string, uint64) {
	lines, bottom := f.lines.Snapshot()
	return lines, bottom + uint64(len(lines))
}

// LineCount returns the total number of lines received.
func (f *Feed) LineCount() uint64 {
	return f.lines.Top()
}

// Latest returns the most recent tuple, the number of tuples received and
// the last tail error.
func (f *Feed) Latest() (record.Tuple, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.tuples, f.lastErr
}

// Run tails both stores of the server behind c into the feed until ctx is
// done.
func (f *Feed) Run(ctx context.Context, c *client.Client, arity int) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := c.TailTuples(ctx, arity, f.PushTuple); err != nil {
			f.SetError(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.TailLines(ctx, f.PushLine); err != nil {
			f.SetError(err)
		}
	}()
	wg.Wait()
}
