// Package source feeds records into a relay: lines from a reader, a followed
// file, or a synthetic demo signal.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ppiankov/splot/internal/record"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

// Sink receives records. *relay.Relay implements it.
type Sink interface {
	Arity() int
	PushTuple(values ...float64) error
	PushLine(line string)
}

// Mode selects the store an input line goes to.
type Mode int

const (
	// ModeAuto pushes lines that parse as exactly Arity numbers as tuples and
	// everything else as text.
	ModeAuto Mode = iota
	// ModeData pushes only numeric lines; other lines are dropped.
	ModeData
	// ModeText pushes every line as text.
	ModeText
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeData:
		return "data"
	case ModeText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseMode parses "auto", "data" or "text".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "data":
		return ModeData, nil
	case "text":
		return ModeText, nil
	}
	return ModeAuto, fmt.Errorf("unknown input mode %q (use auto, data or text)", s)
}

// ReadLines pushes every line of r into sink until EOF or ctx is done.
// Cancellation is observed between lines; a blocked Read is not interrupted.
func ReadLines(ctx context.Context, r io.Reader, sink Sink, mode Mode) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		push(sink, mode, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// push routes one line (without its newline) to the store mode selects.
func push(sink Sink, mode Mode, line string) {
	line = strings.TrimSuffix(line, "\r")
	switch mode {
	case ModeText:
		sink.PushLine(line + "\n")
	case ModeData:
		t, err := record.ParseTuple(line, sink.Arity())
		if err != nil {
			slog.Debug("dropping non-numeric line", "error", err)
			return
		}
		_ = sink.PushTuple(t...)
	default:
		if t, err := record.ParseTuple(line, sink.Arity()); err == nil {
			if sink.PushTuple(t...) == nil {
				return
			}
		}
		sink.PushLine(line + "\n")
	}
}
