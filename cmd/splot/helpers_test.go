package main

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/splot/internal/relay"
)

func newRelayServer(t *testing.T, arity int) (*relay.Relay, *httptest.Server) {
	t.Helper()
	rl := relay.New(relay.Config{Arity: arity, DataCapacity: 100, TextCapacity: 100})
	srv := relay.NewServer(":0", rl)
	srv.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return rl, ts
}
