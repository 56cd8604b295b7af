package ring

import "context"

// DefaultMaxBatch bounds how many records one Tail chunk may carry.
const DefaultMaxBatch = 4096

// Encoder appends the wire form of v to dst.
type Encoder[T any] func(dst []byte, v T) []byte

// Tail turns a Session into a stream of encoded chunks for a transport.
// Each chunk is every record that was immediately readable (up to the batch
// limit), so a new reader's first chunk is the whole retained backlog.
type Tail[T any] struct {
	sess     *Session[T]
	enc      Encoder[T]
	maxBatch int

	batch   int
	records int64
}

// NewTail wraps sess. If maxBatch ≤ 0, DefaultMaxBatch is used.
func NewTail[T any](sess *Session[T], enc Encoder[T], maxBatch int) *Tail[T] {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Tail[T]{sess: sess, enc: enc, maxBatch: maxBatch}
}

// Next returns the next non-empty chunk, blocking until one exists.
// Records gathered before an eviction is detected are returned first; the
// following call returns ErrEvicted. Cancelling ctx returns ctx.Err().
func (t *Tail[T]) Next(ctx context.Context) ([]byte, error) {
	for {
		var buf []byte
		n := 0
		for n < t.maxBatch {
			v, ok, err := t.sess.TryNext()
			if err != nil {
				if n > 0 {
					return t.emit(buf, n), nil
				}
				return nil, err
			}
			if !ok {
				break
			}
			buf = t.enc(buf, v)
			n++
		}
		if n > 0 {
			return t.emit(buf, n), nil
		}
		if err := t.sess.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Batch returns the number of records in the chunk last returned by Next.
func (t *Tail[T]) Batch() int { return t.batch }

// Records returns the total number of records emitted so far.
func (t *Tail[T]) Records() int64 { return t.records }

// Session returns the underlying session.
func (t *Tail[T]) Session() *Session[T] { return t.sess }

func (t *Tail[T]) emit(buf []byte, n int) []byte {
	t.batch = n
	t.records += int64(n)
	return buf
}
