package relay

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// AuditEntry records a single session lifecycle event.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Event     string        `json:"event"`
	Session   string        `json:"session,omitempty"`
	Store     string        `json:"store,omitempty"`
	Transport string        `json:"transport,omitempty"`
	RemoteIP  string        `json:"remote_ip,omitempty"`
	Records   int64         `json:"records,omitempty"`
	Bytes     int64         `json:"bytes,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// AuditLogger writes append-only JSONL audit records.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewAuditLogger opens (or creates) the audit file at path for appending.
func NewAuditLogger(path string) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &AuditLogger{file: f, enc: json.NewEncoder(f)}, nil
}

// Log writes an audit entry. Safe to call from multiple goroutines.
// If a is nil, the call is a no-op.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	entry.Timestamp = time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(entry)
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.file.Close()
}
