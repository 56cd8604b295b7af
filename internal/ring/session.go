package ring

import (
	"context"
	"errors"
)

// ErrEvicted is returned by Session.Next once the reader's cursor has fallen
// behind the retention window. It marks the normal end of a too-slow reader,
// not a failure; the reader may subscribe again to resume from Bottom.
var ErrEvicted = errors.New("ring: reader fell behind retention window")

// State is the position of a Session in its tailing state machine.
type State int

const (
	// Catchup replays records that were already retained at subscribe time.
	Catchup State = iota
	// Live delivers records pushed after the session started.
	Live
	// Waiting is blocked on the store's wake signal.
	Waiting
	// Closed is terminal: evicted or cancelled.
	Closed
)

func (s State) String() string {
	switch s {
	case Catchup:
		return "catchup"
	case Live:
		return "live"
	case Waiting:
		return "waiting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one reader's cursor into a Store. It only reads the store and
// blocks on its wake signal; it owns no shared state. A Session is not safe
// for concurrent use by multiple goroutines.
type Session[T any] struct {
	store      *Store[T]
	idx        uint64
	catchupEnd uint64 // store top at subscribe time
	state      State
	err        error
}

// Next returns the record at the cursor and advances it. When the cursor has
// caught up it blocks until the next push. It returns ErrEvicted when the
// cursor has expired and ctx.Err() when ctx is done; both close the session.
func (s *Session[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if s.state == Closed {
		return zero, s.err
	}
	for {
		res := s.store.Get(s.idx)
		switch res.Status {
		case Ready:
			s.idx++
			s.state = s.readState()
			return res.Value, nil
		case Expired:
			s.close(ErrEvicted)
			return zero, ErrEvicted
		default:
			s.state = Waiting
			if err := res.Wake.Wait(ctx); err != nil {
				s.close(err)
				return zero, err
			}
			// retry the same index
			s.state = s.readState()
		}
	}
}

// TryNext is Next without blocking: ok is false when no record is ready yet.
// An error closes the session exactly as in Next.
func (s *Session[T]) TryNext() (v T, ok bool, err error) {
	if s.state == Closed {
		return v, false, s.err
	}
	res := s.store.Get(s.idx)
	switch res.Status {
	case Ready:
		s.idx++
		s.state = s.readState()
		return res.Value, true, nil
	case Expired:
		s.close(ErrEvicted)
		return v, false, ErrEvicted
	default:
		return v, false, nil
	}
}

// Wait blocks until a push may have made the cursor readable. It returns
// immediately if a record is already ready.
func (s *Session[T]) Wait(ctx context.Context) error {
	if s.state == Closed {
		return s.err
	}
	res := s.store.Get(s.idx)
	if res.Status != Pending {
		return nil
	}
	s.state = Waiting
	if err := res.Wake.Wait(ctx); err != nil {
		s.close(err)
		return err
	}
	s.state = s.readState()
	return nil
}

// Cursor returns the index of the next record this session will read.
func (s *Session[T]) Cursor() uint64 { return s.idx }

// State returns the session's current state.
func (s *Session[T]) State() State { return s.state }

// Err returns the error that closed the session, or nil while it is open.
func (s *Session[T]) Err() error { return s.err }

func (s *Session[T]) readState() State {
	if s.idx < s.catchupEnd {
		return Catchup
	}
	return Live
}

func (s *Session[T]) close(err error) {
	s.state = Closed
	s.err = err
}
