package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/ring"
)

// APIVersion is incremented on breaking changes to the stream endpoints.
const APIVersion = 1

// Snapshot response headers.
const (
	HeaderTop     = "X-Splot-Top"
	HeaderBottom  = "X-Splot-Bottom"
	HeaderArity   = "X-Splot-Arity"
	HeaderSession = "X-Splot-Session"
)

const (
	defaultWriteTimeout = 10 * time.Second
	wsPingInterval      = 30 * time.Second
	wsReadDeadline      = 60 * time.Second
	wsReadLimit         = 512
)

// Server is the HTTP front of a Relay.
type Server struct {
	httpSrv      *http.Server
	relay        *Relay
	audit        *AuditLogger
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	version      string
	pagePath     string
	gzip         bool
	maxBatch     int
	writeTimeout time.Duration
	metrics      http.Handler

	baseCtx  context.Context
	cancel   context.CancelFunc
	draining atomic.Bool
}

// NewServer creates an HTTP server bound to addr serving rl.
func NewServer(addr string, rl *Relay) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		relay:        rl,
		logger:       slog.Default(),
		maxBatch:     ring.DefaultMaxBatch,
		writeTimeout: defaultWriteTimeout,
		metrics:      promhttp.Handler(),
		baseCtx:      ctx,
		cancel:       cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /data", s.handleDataStream)
	mux.HandleFunc("GET /text", s.handleTextStream)
	mux.HandleFunc("GET /ws/data", s.handleDataWebSocket)
	mux.HandleFunc("GET /ws/text", s.handleTextWebSocket)
	mux.HandleFunc("GET /snapshot/data", s.handleDataSnapshot)
	mux.HandleFunc("GET /snapshot/text", s.handleTextSnapshot)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /{$}", s.handlePage)

	// Tail responses never finish on their own, so there is no server-wide
	// write timeout; each chunk write gets its own deadline instead.
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s
}

// SetAuditLogger attaches an audit logger to the server.
func (s *Server) SetAuditLogger(a *AuditLogger) {
	s.audit = a
}

// SetLogger replaces the default slog logger.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetVersion sets the application version reported by /api/version.
func (s *Server) SetVersion(v string) {
	s.version = v
}

// SetPage serves the file at path verbatim on GET /.
func (s *Server) SetPage(path string) {
	s.pagePath = path
}

// SetGzip enables gzip encoding of tail streams for clients that accept it.
func (s *Server) SetGzip(on bool) {
	s.gzip = on
}

// SetMaxBatch bounds the number of records per emitted chunk.
func (s *Server) SetMaxBatch(n int) {
	if n > 0 {
		s.maxBatch = n
	}
}

// SetWriteTimeout sets the deadline for writing one chunk to a client.
// Zero disables it.
func (s *Server) SetWriteTimeout(d time.Duration) {
	s.writeTimeout = d
}

// SetGatherer serves /metrics from g instead of the default registry.
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	if g != nil {
		s.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Serve accepts connections on a listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpSrv.Serve(ln)
}

// ServeTLS accepts TLS connections on a listener.
func (s *Server) ServeTLS(ln net.Listener, certFile, keyFile string) error {
	return s.httpSrv.ServeTLS(ln, certFile, keyFile)
}

// Shutdown marks the server not ready, ends every open tail session and then
// gracefully shuts down the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleDataStream(w http.ResponseWriter, r *http.Request) {
	serveStream(s, w, r, StoreData, "application/octet-stream", s.relay.data, record.AppendTuple)
}

func (s *Server) handleTextStream(w http.ResponseWriter, r *http.Request) {
	serveStream(s, w, r, StoreText, "text/plain; charset=utf-8", s.relay.text, record.AppendText)
}

func (s *Server) handleDataWebSocket(w http.ResponseWriter, r *http.Request) {
	serveWebSocket(s, w, r, StoreData, websocket.BinaryMessage, s.relay.data, record.AppendTuple)
}

func (s *Server) handleTextWebSocket(w http.ResponseWriter, r *http.Request) {
	serveWebSocket(s, w, r, StoreText, websocket.TextMessage, s.relay.text, record.AppendText)
}

func (s *Server) handleDataSnapshot(w http.ResponseWriter, _ *http.Request) {
	values, bottom := s.relay.data.Snapshot()
	var body []byte
	for _, t := range values {
		body = record.AppendTuple(body, t)
	}
	s.writeSnapshot(w, "application/octet-stream", bottom, len(values), body)
}

func (s *Server) handleTextSnapshot(w http.ResponseWriter, _ *http.Request) {
	values, bottom := s.relay.text.Snapshot()
	var body []byte
	for _, line := range values {
		body = record.AppendText(body, line)
	}
	s.writeSnapshot(w, "text/plain; charset=utf-8", bottom, len(values), body)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, contentType string, bottom uint64, n int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderBottom, strconv.FormatUint(bottom, 10))
	h.Set(HeaderTop, strconv.FormatUint(bottom+uint64(n), 10))
	h.Set(HeaderArity, strconv.Itoa(s.relay.arity))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.relay.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready","reason":"shutting down"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	v := s.version
	if v == "" {
		v = "dev"
	}
	resp := struct {
		Version string `json:"version"`
		API     int    `json:"api"`
		Arity   int    `json:"arity"`
	}{
		Version: v,
		API:     APIVersion,
		Arity:   s.relay.arity,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if s.pagePath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.pagePath)
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
