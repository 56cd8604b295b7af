package source

import (
	"context"
	"fmt"
	"time"
)

// DefaultDemoInterval is the push period used when Demo gets a non-positive
// interval.
const DefaultDemoInterval = 10 * time.Millisecond

// demoLineEvery is how many tuples pass between demo text lines.
const demoLineEvery = 100

// Demo pushes a synthetic series until ctx is done: element 0 of each tuple
// is the wall clock in Unix seconds and element i is i*n for the n-th tuple.
// Every hundredth tuple is also announced on the text store.
func Demo(ctx context.Context, sink Sink, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultDemoInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	values := make([]float64, sink.Arity())
	for n := 0; ; n++ {
		now := time.Now()
		DemoTuple(values, now, n)
		if err := sink.PushTuple(values...); err != nil {
			return err
		}
		if n%demoLineEvery == 0 {
			sink.PushLine(fmt.Sprintf("%s demo tuple %d\n", now.UTC().Format(time.RFC3339), n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DemoTuple fills values with the n-th demo tuple taken at now.
func DemoTuple(values []float64, now time.Time, n int) {
	for i := range values {
		if i == 0 {
			values[i] = float64(now.UnixNano()) / 1e9
			continue
		}
		values[i] = float64(i * n)
	}
}
