package record

import "fmt"

// FrameDecoder reassembles tuples from a byte stream whose chunk boundaries
// do not line up with tuple boundaries.
type FrameDecoder struct {
	arity int
	rest  []byte
}

// NewFrameDecoder creates a decoder for tuples of the given arity.
func NewFrameDecoder(arity int) (*FrameDecoder, error) {
	if arity <= 0 {
		return nil, fmt.Errorf("invalid arity %d", arity)
	}
	return &FrameDecoder{arity: arity}, nil
}

// Feed consumes chunk and returns every tuple it completes.
func (d *FrameDecoder) Feed(chunk []byte) []Tuple {
	buf := chunk
	if len(d.rest) > 0 {
		buf = append(d.rest, chunk...)
	}
	tuples, rest, _ := DecodeTuples(buf, d.arity)
	d.rest = append(d.rest[:0:0], rest...)
	return tuples
}

// Buffered returns the number of bytes held back waiting for more input.
func (d *FrameDecoder) Buffered() int { return len(d.rest) }
