package relay

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Stats collects relay counters for /api/stats and the dashboard.
// All methods are safe for concurrent use; a nil *Stats reports zeros.
type Stats struct {
	TuplesPushed    atomic.Int64
	LinesPushed     atomic.Int64
	Rejected        atomic.Int64
	ActiveSessions  atomic.Int64
	SessionsEvicted atomic.Int64
	BytesEmitted    atomic.Int64

	mu      sync.Mutex
	clients map[string]int64
}

// NewStats creates a Stats collector.
func NewStats() *Stats {
	return &Stats{
		clients: make(map[string]int64),
	}
}

// RecordReject increments the rejected tuple counter.
func (s *Stats) RecordReject() {
	s.Rejected.Add(1)
}

// RecordSessionOpen counts a new session from remote.
func (s *Stats) RecordSessionOpen(remote string) {
	s.ActiveSessions.Add(1)
	if remote == "" {
		return
	}
	s.mu.Lock()
	s.clients[remote]++
	s.mu.Unlock()
}

// RecordSessionClose counts a finished session.
func (s *Stats) RecordSessionClose(evicted bool) {
	s.ActiveSessions.Add(-1)
	if evicted {
		s.SessionsEvicted.Add(1)
	}
}

// Client is a remote address and the number of sessions it has opened.
type Client struct {
	Addr     string `json:"addr"`
	Sessions int64  `json:"sessions"`
}

// StoreStats describes one store's retention window.
type StoreStats struct {
	Top      uint64 `json:"top"`
	Bottom   uint64 `json:"bottom"`
	Capacity int    `json:"capacity"`
	Waiters  int64  `json:"waiters"`
}

// Snapshot is a point-in-time copy of relay stats.
type Snapshot struct {
	Arity           int        `json:"arity"`
	Data            StoreStats `json:"data"`
	Text            StoreStats `json:"text"`
	TuplesPushed    int64      `json:"tuples_pushed"`
	LinesPushed     int64      `json:"lines_pushed"`
	Rejected        int64      `json:"rejected"`
	ActiveSessions  int64      `json:"active_sessions"`
	SessionsEvicted int64      `json:"sessions_evicted"`
	BytesEmitted    int64      `json:"bytes_emitted"`
	Clients         []Client   `json:"clients"`
}

// Snapshot returns a point-in-time copy of all stats. Clients are sorted by
// session count, busiest first.
func (s *Stats) Snapshot(arity int, data, text StoreStats) Snapshot {
	snap := Snapshot{
		Arity:   arity,
		Data:    data,
		Text:    text,
		Clients: []Client{},
	}
	if s == nil {
		return snap
	}
	snap.TuplesPushed = s.TuplesPushed.Load()
	snap.LinesPushed = s.LinesPushed.Load()
	snap.Rejected = s.Rejected.Load()
	snap.ActiveSessions = s.ActiveSessions.Load()
	snap.SessionsEvicted = s.SessionsEvicted.Load()
	snap.BytesEmitted = s.BytesEmitted.Load()

	s.mu.Lock()
	for addr, n := range s.clients {
		snap.Clients = append(snap.Clients, Client{Addr: addr, Sessions: n})
	}
	s.mu.Unlock()

	sort.Slice(snap.Clients, func(i, j int) bool {
		if snap.Clients[i].Sessions != snap.Clients[j].Sessions {
			return snap.Clients[i].Sessions > snap.Clients[j].Sessions
		}
		return snap.Clients[i].Addr < snap.Clients[j].Addr
	})
	return snap
}
