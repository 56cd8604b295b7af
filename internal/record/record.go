// Package record defines the wire form of relayed records.
//
// A numeric record is a tuple of float64 values, each written as an 8-byte
// big-endian IEEE-754 double in tuple order with no delimiter. A text record
// is its raw UTF-8 bytes, also with no delimiter; any newline is part of the
// payload supplied by the producer.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FloatSize is the encoded size of one tuple element.
const FloatSize = 8

// Tuple is one numeric record. Tuples stored in a relay are never mutated
// after they are pushed.
type Tuple []float64

// AppendTuple appends the wire form of t to dst.
func AppendTuple(dst []byte, t Tuple) []byte {
	for _, v := range t {
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}

// AppendText appends the wire form of a text record to dst.
func AppendText(dst []byte, s string) []byte {
	return append(dst, s...)
}

// DecodeTuples decodes every complete tuple of the given arity in b and
// returns the trailing bytes that do not yet form a whole tuple.
func DecodeTuples(b []byte, arity int) ([]Tuple, []byte, error) {
	if arity <= 0 {
		return nil, b, fmt.Errorf("invalid arity %d", arity)
	}
	size := arity * FloatSize
	n := len(b) / size
	out := make([]Tuple, 0, n)
	for i := 0; i < n; i++ {
		frame := b[i*size : (i+1)*size]
		t := make(Tuple, arity)
		for j := range t {
			t[j] = math.Float64frombits(binary.BigEndian.Uint64(frame[j*FloatSize:]))
		}
		out = append(out, t)
	}
	return out, b[n*size:], nil
}

// ParseTuple parses a line of numbers separated by commas, whitespace or
// both. It fails if the line does not hold exactly arity numbers.
func ParseTuple(line string, arity int) (Tuple, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) != arity {
		return nil, fmt.Errorf("got %d fields, want %d", len(fields), arity)
	}
	t := make(Tuple, arity)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}

// FormatTuple renders t as comma-separated values with the shortest exact
// float representation.
func FormatTuple(t Tuple) string {
	var b strings.Builder
	for i, v := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
