// Package ring implements a bounded-retention record log that many tailing
// readers follow concurrently while a single producer appends to it.
//
// A Store keeps the most recent Capacity records. Every record has a logical
// index; Top is the next index to be written and Bottom the oldest index still
// retrievable. Readers hold a cursor, read with Get and, when they have caught
// up, block on the Waiter that Get hands back. A reader whose cursor falls
// below Bottom is evicted.
package ring

import "sync"

// DefaultCapacity is used when a Store is created with a non-positive capacity.
const DefaultCapacity = 10_000

// Status classifies the outcome of Store.Get.
type Status int

const (
	// Ready means the record at the requested index was returned.
	Ready Status = iota
	// Pending means the index has not been written yet; wait on Result.Wake.
	Pending
	// Expired means the index is older than the retention window.
	Expired
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Result is returned by Store.Get. Value is set only for Ready, Wake only
// for Pending.
type Result[T any] struct {
	Status Status
	Value  T
	Wake   Waiter
}

// Store is a fixed-capacity circular log with a monotonically increasing
// write index. Push must be called from a single producer at a time; Get,
// Snapshot and the accessors are safe from any number of goroutines.
type Store[T any] struct {
	mu    sync.RWMutex
	slots []T
	n     uint64
	top   uint64 // next index to write, never decreases
	wake  *WakeSignal
}

// New creates a store holding up to capacity records. Every slot starts as
// placeholder; placeholders are never observable through Get.
// If capacity ≤ 0, DefaultCapacity is used.
func New[T any](placeholder T, capacity int) *Store[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	slots := make([]T, capacity)
	for i := range slots {
		slots[i] = placeholder
	}
	return &Store[T]{
		slots: slots,
		n:     uint64(capacity),
		wake:  NewWakeSignal(),
	}
}

// Push appends v, overwriting the record Capacity positions behind it, and
// wakes every waiting reader. Never blocks on readers and never fails.
func (s *Store[T]) Push(v T) {
	s.mu.Lock()
	s.slots[s.top%s.n] = v
	s.top++
	// Swapped under the write lock: a Get that returned Pending before this
	// Push holds exactly the generation closed here.
	s.wake.WakeAll()
	s.mu.Unlock()
}

// Get returns the record at idx, reports that idx has expired, or hands back
// the Waiter to block on until idx is written. The bounds check and the
// Waiter capture happen under one read lock.
func (s *Store[T]) Get(idx uint64) Result[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case idx < s.bottom():
		return Result[T]{Status: Expired}
	case idx < s.top:
		return Result[T]{Status: Ready, Value: s.slots[idx%s.n]}
	default:
		return Result[T]{Status: Pending, Wake: s.wake.Waiter()}
	}
}

// Top returns the next index to be written.
func (s *Store[T]) Top() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.top
}

// Bottom returns the oldest index still retrievable.
func (s *Store[T]) Bottom() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bottom()
}

// Capacity returns the retention window size.
func (s *Store[T]) Capacity() int {
	return int(s.n)
}

// Waiters returns the number of readers currently blocked waiting for a push.
func (s *Store[T]) Waiters() int64 {
	return s.wake.Waiting()
}

// Snapshot returns a copy of every retrievable record in index order and the
// index of the first one.
func (s *Store[T]) Snapshot() ([]T, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bottom := s.bottom()
	n := s.top - bottom
	if n == 0 {
		return nil, bottom
	}
	out := make([]T, n)
	for i := uint64(0); i < n; i++ {
		out[i] = s.slots[(bottom+i)%s.n]
	}
	return out, bottom
}

// Subscribe starts a session whose cursor is the current Bottom, so the
// reader is backfilled with everything still retained.
func (s *Store[T]) Subscribe() *Session[T] {
	s.mu.RLock()
	idx := s.bottom()
	top := s.top
	s.mu.RUnlock()
	return &Session[T]{store: s, idx: idx, catchupEnd: top}
}

func (s *Store[T]) bottom() uint64 {
	if s.top < s.n {
		return 0
	}
	return s.top - s.n
}
