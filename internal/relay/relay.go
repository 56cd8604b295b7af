// Package relay owns the numeric and text stores of a running splot process
// and serves them to tailing clients over HTTP and WebSocket.
package relay

import (
	"errors"
	"fmt"

	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/redact"
	"github.com/ppiankov/splot/internal/ring"
)

// DefaultArity is the tuple width used when Config.Arity is not set.
const DefaultArity = 2

// ErrArity is returned by PushTuple when the value count does not match the
// relay's arity.
var ErrArity = errors.New("tuple arity mismatch")

// Config sizes a Relay. Zero capacities fall back to ring.DefaultCapacity.
type Config struct {
	Arity        int
	DataCapacity int
	TextCapacity int
}

// Relay holds two independent stores: fixed-arity numeric tuples and text
// lines. Pushes to either store are serialized by that store's lock, so any
// number of producers may push concurrently.
type Relay struct {
	arity    int
	data     *ring.Store[record.Tuple]
	text     *ring.Store[string]
	metrics  *Metrics
	stats    *Stats
	redactor *redact.Redactor
}

// New creates a relay from cfg.
func New(cfg Config) *Relay {
	if cfg.Arity <= 0 {
		cfg.Arity = DefaultArity
	}
	return &Relay{
		arity: cfg.Arity,
		data:  ring.New(make(record.Tuple, cfg.Arity), cfg.DataCapacity),
		text:  ring.New("", cfg.TextCapacity),
	}
}

// SetMetrics attaches Prometheus metrics. Call before pushing.
func (r *Relay) SetMetrics(m *Metrics) {
	r.metrics = m
}

// SetStats attaches a stats collector. Call before pushing.
func (r *Relay) SetStats(s *Stats) {
	r.stats = s
}

// SetRedactor scrubs every text line through red before it is stored.
func (r *Relay) SetRedactor(red *redact.Redactor) {
	r.redactor = red
	if red != nil {
		red.OnRedact(r.recordRedaction)
	}
}

// Arity returns the fixed tuple width.
func (r *Relay) Arity() int { return r.arity }

// Data returns the numeric store.
func (r *Relay) Data() *ring.Store[record.Tuple] { return r.data }

// Text returns the text store.
func (r *Relay) Text() *ring.Store[string] { return r.text }

// PushTuple appends one numeric record. The values are copied, so the caller
// may reuse its slice.
func (r *Relay) PushTuple(values ...float64) error {
	if len(values) != r.arity {
		if r.metrics != nil {
			r.metrics.RecordsRejected.Inc()
		}
		if r.stats != nil {
			r.stats.RecordReject()
		}
		return fmt.Errorf("%w: got %d values, want %d", ErrArity, len(values), r.arity)
	}
	t := make(record.Tuple, len(values))
	copy(t, values)
	r.data.Push(t)

	if r.metrics != nil {
		r.metrics.RecordsPushed.WithLabelValues(StoreData).Inc()
		r.metrics.RetainedRecords.WithLabelValues(StoreData).Set(float64(r.data.Top() - r.data.Bottom()))
	}
	if r.stats != nil {
		r.stats.TuplesPushed.Add(1)
	}
	return nil
}

// PushLine appends one text record exactly as given; a trailing newline, if
// wanted on the wire, is part of line.
func (r *Relay) PushLine(line string) {
	if r.redactor != nil {
		line = r.redactor.Redact(line)
	}
	r.text.Push(line)

	if r.metrics != nil {
		r.metrics.RecordsPushed.WithLabelValues(StoreText).Inc()
		r.metrics.RetainedRecords.WithLabelValues(StoreText).Set(float64(r.text.Top() - r.text.Bottom()))
	}
	if r.stats != nil {
		r.stats.LinesPushed.Add(1)
	}
}

// Stats returns a point-in-time view of both stores and the session counters.
func (r *Relay) Stats() Snapshot {
	return r.stats.Snapshot(r.arity, storeStats(r.data), storeStats(r.text))
}

func (r *Relay) recordRedaction(pattern string) {
	if r.metrics != nil {
		r.metrics.RedactionsTotal.WithLabelValues(pattern).Inc()
	}
}

func storeStats[T any](s *ring.Store[T]) StoreStats {
	return StoreStats{
		Top:      s.Top(),
		Bottom:   s.Bottom(),
		Capacity: s.Capacity(),
		Waiters:  s.Waiters(),
	}
}
