package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/relay"
)

const testTimeout = 5 * time.Second

func newRelayServer(t *testing.T, cfg relay.Config) (*relay.Relay, *httptest.Server) {
	t.Helper()
	rl := relay.New(cfg)
	srv := relay.NewServer(":0", rl)
	srv.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return rl, ts
}

func TestTailTuplesBackfillAndLive(t *testing.T) {
	rl, ts := newRelayServer(t, relay.Config{Arity: 2})
	for i := 0; i < 3; i++ {
		_ = rl.PushTuple(float64(i), float64(i)*10)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	got := make(chan record.Tuple, 16)
	done := make(chan error, 1)
	go func() {
		done <- New(ts.URL).TailTuples(ctx, 2, func(t record.Tuple) { got <- t })
	}()

	for i := 0; i < 3; i++ {
		select {
		case tup := <-got:
			if tup[0] != float64(i) || tup[1] != float64(i)*10 {
				t.Errorf("backfill %d = %v", i, tup)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for backfill")
		}
	}

	_ = rl.PushTuple(7, 70)
	select {
	case tup := <-got:
		if tup[0] != 7 {
			t.Errorf("live = %v", tup)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for live tuple")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("TailTuples after cancel: %v", err)
	}
}

func TestTailTuplesFetchesArity(t *testing.T) {
	rl, ts := newRelayServer(t, relay.Config{Arity: 3})
	_ = rl.PushTuple(1, 2, 3)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	got := make(chan record.Tuple, 1)
	done := make(chan error, 1)
	go func() {
		done <- TailTuples(ctx, ts.URL, 0, func(t record.Tuple) { got <- t })
	}()

	select {
	case tup := <-got:
		if len(tup) != 3 || tup[2] != 3 {
			t.Errorf("tuple = %v", tup)
		}
	case <-ctx.Done():
		t.Fatal("timed out")
	}
	cancel()
	<-done
}

func TestTailLines(t *testing.T) {
	rl, ts := newRelayServer(t, relay.Config{})
	rl.PushLine("alpha\n")
	rl.PushLine("beta\n")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- TailLines(ctx, ts.URL, func(s string) { got <- s })
	}()

	for _, want := range []string{"alpha", "beta"} {
		select {
		case line := <-got:
			if line != want {
				t.Errorf("line = %q, want %q", line, want)
			}
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
	cancel()
	<-done
}

func TestTailLinesFinalPartial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "one\ntwo")
	}))
	defer ts.Close()

	var lines []string
	err := New(ts.URL).TailLines(context.Background(), func(s string) { lines = append(lines, s) })
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %q", lines)
	}
}

func TestSnapshot(t *testing.T) {
	rl, ts := newRelayServer(t, relay.Config{Arity: 1, DataCapacity: 2})
	for i := 0; i < 4; i++ {
		_ = rl.PushTuple(float64(i))
	}
	rl.PushLine("x\n")
	rl.PushLine("y\n")

	c := New(ts.URL)
	data, err := c.Snapshot(context.Background(), StoreData)
	if err != nil {
		t.Fatal(err)
	}
	if data.Top != 4 || data.Bottom != 2 || data.Arity != 1 {
		t.Errorf("top/bottom/arity = %d/%d/%d", data.Top, data.Bottom, data.Arity)
	}
	if len(data.Tuples) != 2 || data.Tuples[0][0] != 2 || data.Tuples[1][0] != 3 {
		t.Errorf("tuples = %v", data.Tuples)
	}

	text, err := c.Snapshot(context.Background(), StoreText)
	if err != nil {
		t.Fatal(err)
	}
	if len(text.Lines) != 2 || text.Lines[1] != "y\n" {
		t.Errorf("lines = %q", text.Lines)
	}
	if string(text.Raw) != "x\ny\n" {
		t.Errorf("raw = %q", text.Raw)
	}
}

func TestSnapshotUnknownStore(t *testing.T) {
	if _, err := New("localhost:1").Snapshot(context.Background(), "logs"); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestInfoAndStats(t *testing.T) {
	rl, ts := newRelayServer(t, relay.Config{Arity: 5})
	_ = rl.PushTuple(1, 2, 3, 4, 5)

	c := New(ts.URL)
	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Arity != 5 || info.API != relay.APIVersion {
		t.Errorf("info = %+v", info)
	}
	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Data.Top != 1 {
		t.Errorf("data top = %d, want 1", stats.Data.Top)
	}
}

func TestHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	err := New(ts.URL).TailLines(context.Background(), func(string) {})
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestReconnect(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		_, _ = io.WriteString(w, "hello\n")
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	c := New(ts.URL)
	c.SetReconnect(true)
	c.SetMaxBackoff(10 * time.Millisecond)
	var reconnects atomic.Int32
	c.SetOnReconnect(func(error) { reconnects.Add(1) })

	var lines atomic.Int32
	err := c.TailLines(ctx, func(string) {
		if lines.Add(1) == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if conns.Load() < 3 {
		t.Errorf("connections = %d, want >= 3", conns.Load())
	}
	if reconnects.Load() < 2 {
		t.Errorf("reconnects = %d, want >= 2", reconnects.Load())
	}
}

func TestTargetURL(t *testing.T) {
	tests := []struct {
		target, want string
	}{
		{"localhost:3004", "http://localhost:3004/data"},
		{"http://host:1/", "http://host:1/data"},
		{"https://host", "https://host/data"},
	}
	for _, tt := range tests {
		if got := TargetURL(tt.target, "/data"); got != tt.want {
			t.Errorf("TargetURL(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}
