package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"

	"github.com/ppiankov/splot/internal/ring"
)

// tailSession identifies one connected reader for metrics, stats and audit.
type tailSession struct {
	id        string
	store     string
	transport string
	remote    string
	start     time.Time
}

// serveStream writes tail chunks from src to a chunked HTTP response until
// the client goes away, the server shuts down or the reader is evicted.
func serveStream[T any](s *Server, w http.ResponseWriter, r *http.Request, store, contentType string, src *ring.Store[T], enc ring.Encoder[T]) {
	sess := s.openSession(store, TransportHTTP, r)
	var records, sent int64
	var reason error
	defer func() { s.closeSession(sess, records, sent, reason) }()

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set(HeaderSession, sess.id)

	var out io.Writer = w
	var gz *gzip.Writer
	if s.gzip && acceptsGzip(r.Header.Get("Accept-Encoding")) {
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		gz = gzip.NewWriter(w)
		out = gz
	}

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		reason = err
		return
	}

	// The cursor is fixed at the current bottom, so subscribe only once the
	// response is open and the first read follows immediately.
	tail := ring.NewTail(src.Subscribe(), enc, s.maxBatch)
	ctx := r.Context()
	for {
		chunk, err := tail.Next(ctx)
		if err != nil {
			reason = err
			break
		}
		_ = rc.SetWriteDeadline(s.writeDeadline())
		if _, err := out.Write(chunk); err != nil {
			reason = err
			break
		}
		if gz != nil {
			if err := gz.Flush(); err != nil {
				reason = err
				break
			}
		}
		if err := rc.Flush(); err != nil {
			reason = err
			break
		}
		records += int64(tail.Batch())
		sent += int64(len(chunk))
		s.recordEmit(store, tail.Batch(), len(chunk))
	}

	_ = rc.SetWriteDeadline(s.writeDeadline())
	if gz != nil {
		_ = gz.Close()
	}
	_ = rc.Flush()
}

type wsChunk struct {
	data    []byte
	records int
}

// serveWebSocket sends each tail chunk from src as one WebSocket message of
// msgType. The tail runs in its own goroutine so the write loop can
// interleave pings.
func serveWebSocket[T any](s *Server, w http.ResponseWriter, r *http.Request, store string, msgType int, src *ring.Store[T], enc ring.Encoder[T]) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "store", store, "error", err)
		return
	}
	defer conn.Close()

	sess := s.openSession(store, TransportWebSocket, r)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Incoming messages are ignored; a read error means the peer is gone.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	chunks := make(chan wsChunk)
	var tailErr error
	tail := ring.NewTail(src.Subscribe(), enc, s.maxBatch)
	go func() {
		defer close(chunks)
		for {
			data, err := tail.Next(ctx)
			if err != nil {
				tailErr = err
				return
			}
			select {
			case chunks <- wsChunk{data: data, records: tail.Batch()}:
			case <-ctx.Done():
				tailErr = ctx.Err()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	var records, sent int64
	var writeErr error
loop:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			_ = conn.SetWriteDeadline(s.writeDeadline())
			if err := conn.WriteMessage(msgType, c.data); err != nil {
				writeErr = err
				break loop
			}
			records += int64(c.records)
			sent += int64(len(c.data))
			s.recordEmit(store, c.records, len(c.data))
		case <-ticker.C:
			_ = conn.SetWriteDeadline(s.writeDeadline())
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				writeErr = err
				break loop
			}
		}
	}
	cancel()
	for range chunks {
	}

	reason := tailErr
	if writeErr != nil {
		reason = writeErr
	}
	switch {
	case errors.Is(reason, ring.ErrEvicted):
		s.closeWebSocket(conn, websocket.CloseTryAgainLater, "reader fell behind")
	case s.baseCtx.Err() != nil:
		s.closeWebSocket(conn, websocket.CloseGoingAway, "server shutting down")
	}
	s.closeSession(sess, records, sent, reason)
}

func (s *Server) closeWebSocket(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) writeDeadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}

func (s *Server) openSession(store, transport string, r *http.Request) tailSession {
	sess := tailSession{
		id:        uuid.NewString(),
		store:     store,
		transport: transport,
		remote:    stripPort(r.RemoteAddr),
		start:     time.Now(),
	}
	if m := s.relay.metrics; m != nil {
		m.SessionsActive.WithLabelValues(store, transport).Inc()
		m.SessionsOpened.WithLabelValues(store, transport).Inc()
	}
	if st := s.relay.stats; st != nil {
		st.RecordSessionOpen(sess.remote)
	}
	s.audit.Log(AuditEntry{
		Event:     "session_opened",
		Session:   sess.id,
		Store:     store,
		Transport: transport,
		RemoteIP:  sess.remote,
	})
	s.logger.Debug("session opened", "session", sess.id, "store", store, "transport", transport, "remote", sess.remote)
	return sess
}

func (s *Server) closeSession(sess tailSession, records, sent int64, reason error) {
	evicted := errors.Is(reason, ring.ErrEvicted)
	if m := s.relay.metrics; m != nil {
		m.SessionsActive.WithLabelValues(sess.store, sess.transport).Dec()
		if evicted {
			m.SessionsEvicted.WithLabelValues(sess.store).Inc()
		}
	}
	if st := s.relay.stats; st != nil {
		st.RecordSessionClose(evicted)
	}

	event := "session_closed"
	if evicted {
		event = "session_evicted"
	}
	s.audit.Log(AuditEntry{
		Event:     event,
		Session:   sess.id,
		Store:     sess.store,
		Transport: sess.transport,
		RemoteIP:  sess.remote,
		Records:   records,
		Bytes:     sent,
		Duration:  time.Since(sess.start),
	})

	attrs := []any{"session", sess.id, "store", sess.store, "transport", sess.transport, "records", records}
	switch {
	case evicted:
		s.logger.Warn("session evicted", attrs...)
	case reason == nil || errors.Is(reason, context.Canceled):
		s.logger.Debug("session closed", attrs...)
	default:
		s.logger.Debug("session closed", append(attrs, "error", reason)...)
	}
}

func (s *Server) recordEmit(store string, records, n int) {
	if m := s.relay.metrics; m != nil {
		m.BytesEmitted.WithLabelValues(store).Add(float64(n))
		m.EmitBatch.WithLabelValues(store).Observe(float64(records))
	}
	if st := s.relay.stats; st != nil {
		st.BytesEmitted.Add(int64(n))
	}
}

// acceptsGzip reports whether an Accept-Encoding value allows gzip.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "gzip") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
