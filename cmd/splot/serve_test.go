package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/splot/internal/cli"
	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/relay"
)

func testServeOpts() serveOpts {
	return serveOpts{
		listen:       "127.0.0.1:0",
		arity:        2,
		mode:         "auto",
		writeTimeout: "10s",
		registry:     prometheus.NewRegistry(),
	}
}

// startServe runs runServe in the background and returns the bound address.
func startServe(t *testing.T, o serveOpts) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	o.onListen = func(addr string) { addrCh <- addr }

	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, o) }()

	select {
	case addr := <-addrCh:
		return addr, cancel, errCh
	case err := <-errCh:
		cancel()
		t.Fatalf("runServe exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return "", cancel, errCh
}

func stopServe(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not stop")
	}
}

func waitForStats(t *testing.T, c *client.Client, ok func(relay.Snapshot) bool) relay.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := c.Stats(context.Background())
		if err == nil && ok(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last stats %+v, err %v", snap, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunServeStdin(t *testing.T) {
	o := testServeOpts()
	o.stdin = strings.NewReader("1,2\n3 4\nhello world\n5,6,7\n")
	addr, cancel, errCh := startServe(t, o)

	c := client.New(addr)
	snap := waitForStats(t, c, func(s relay.Snapshot) bool {
		return s.TuplesPushed == 2 && s.LinesPushed == 2
	})
	if snap.Arity != 2 {
		t.Errorf("arity = %d, want 2", snap.Arity)
	}

	data, err := c.Snapshot(context.Background(), client.StoreData)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Tuples) != 2 || data.Tuples[1][0] != 3 || data.Tuples[1][1] != 4 {
		t.Errorf("tuples = %v", data.Tuples)
	}
	text, err := c.Snapshot(context.Background(), client.StoreText)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(text.Lines, "") != "hello world\n5,6,7\n" {
		t.Errorf("lines = %q", text.Lines)
	}

	stopServe(t, cancel, errCh)
}

func TestRunServeFollowRedactAudit(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.log")
	if err := os.WriteFile(input, []byte("user a@b.io logged in\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	auditPath := filepath.Join(dir, "audit.jsonl")

	o := testServeOpts()
	o.follow = input
	o.fromStart = true
	o.mode = "text"
	o.redact = "email"
	o.audit = auditPath
	addr, cancel, errCh := startServe(t, o)

	c := client.New(addr)
	waitForStats(t, c, func(s relay.Snapshot) bool { return s.LinesPushed == 1 })
	text, err := c.Snapshot(context.Background(), client.StoreText)
	if err != nil {
		t.Fatal(err)
	}
	if len(text.Lines) != 1 || text.Lines[0] != "user [REDACTED:email] logged in\n" {
		t.Errorf("lines = %q", text.Lines)
	}

	stopServe(t, cancel, errCh)

	f, err := os.Open(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e relay.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatal(err)
		}
		events = append(events, e.Event)
	}
	if len(events) != 2 || events[0] != "server_started" || events[1] != "server_stopped" {
		t.Errorf("audit events = %v", events)
	}
}

func TestRunServeDemo(t *testing.T) {
	o := testServeOpts()
	o.arity = 3
	o.demo = true
	o.demoInterval = time.Millisecond
	addr, cancel, errCh := startServe(t, o)

	c := client.New(addr)
	waitForStats(t, c, func(s relay.Snapshot) bool { return s.TuplesPushed >= 10 && s.LinesPushed >= 1 })
	stopServe(t, cancel, errCh)
}

func TestRunServeHealth(t *testing.T) {
	o := testServeOpts()
	o.noStdin = true
	addr, cancel, errCh := startServe(t, o)

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	info, err := client.New(addr).Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != version || info.Arity != 2 {
		t.Errorf("info = %+v", info)
	}
	stopServe(t, cancel, errCh)
}

func TestRunServeMetricsFromRegistry(t *testing.T) {
	o := testServeOpts()
	o.stdin = strings.NewReader("1,2\n")
	addr, cancel, errCh := startServe(t, o)

	waitForStats(t, client.New(addr), func(s relay.Snapshot) bool { return s.TuplesPushed == 1 })
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `splot_records_pushed_total{store="data"} 1`) {
		t.Errorf("/metrics missing relay collectors:\n%s", body)
	}
	stopServe(t, cancel, errCh)
}

func TestRunServeValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*serveOpts)
	}{
		{"arity", func(o *serveOpts) { o.arity = 0 }},
		{"mode", func(o *serveOpts) { o.mode = "both" }},
		{"write timeout", func(o *serveOpts) { o.writeTimeout = "soon" }},
		{"tls pair", func(o *serveOpts) { o.tlsCert = "cert.pem" }},
		{"demo and follow", func(o *serveOpts) { o.demo, o.follow = true, "x.log" }},
		{"redact", func(o *serveOpts) { o.redact = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testServeOpts()
			tt.modify(&o)
			err := runServe(context.Background(), o)
			if cli.ExitCode(err) != cli.ExitUsage {
				t.Errorf("err = %v, want usage error", err)
			}
		})
	}
}

func TestRunServeInvalidListen(t *testing.T) {
	o := testServeOpts()
	o.listen = "invalid"
	err := runServe(context.Background(), o)
	if err == nil {
		t.Fatal("expected error for invalid listen address")
	}
	if cli.ExitCode(err) != cli.ExitNetwork {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitNetwork)
	}
}
