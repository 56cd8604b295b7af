// Package client tails and snapshots a running splot server over HTTP.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/relay"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	readBufferBytes       = 32 << 10
)

// Store names accepted by Snapshot.
const (
	StoreData = relay.StoreData
	StoreText = relay.StoreText
)

// Info is the server's /api/version response.
type Info struct {
	Version string `json:"version"`
	API     int    `json:"api"`
	Arity   int    `json:"arity"`
}

// Client talks to one splot server.
type Client struct {
	target      string
	http        *http.Client
	timeout     time.Duration
	reconnect   bool
	maxBackoff  time.Duration
	onReconnect func(err error)
}

// New creates a Client for target. Targets prefixed with https:// use TLS;
// plain host:port defaults to http://.
func New(target string) *Client {
	return NewWithClient(target, &http.Client{})
}

// NewTLS creates a Client with TLS support.
// Set skipVerify to true for self-signed certificates.
func NewTLS(target string, skipVerify bool) *Client {
	return NewWithClient(target, &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: skipVerify, //nolint:gosec // user-controlled flag for self-signed certs
			},
		},
	})
}

// NewWithClient creates a Client with a custom HTTP client. The client must
// not set a Timeout, since tail responses never end on their own.
func NewWithClient(target string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		target:     target,
		http:       hc,
		timeout:    defaultRequestTimeout,
		maxBackoff: defaultMaxBackoff,
	}
}

// SetReconnect makes tail calls resubscribe, with exponential backoff, when
// a stream ends or fails. A resubscribed reader starts again from the
// server's oldest retained record.
func (c *Client) SetReconnect(on bool) { c.reconnect = on }

// SetMaxBackoff sets the maximum delay between reconnect attempts.
func (c *Client) SetMaxBackoff(d time.Duration) { c.maxBackoff = d }

// SetOnReconnect sets a callback invoked before each reconnect attempt with
// the reason the previous stream ended (nil for a clean end).
func (c *Client) SetOnReconnect(fn func(err error)) { c.onReconnect = fn }

// Info fetches the server version and tuple arity.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.getJSON(ctx, "/api/version", &info)
	return info, err
}

// Stats fetches the server's store and session counters.
func (c *Client) Stats(ctx context.Context) (relay.Snapshot, error) {
	var snap relay.Snapshot
	err := c.getJSON(ctx, "/api/stats", &snap)
	return snap, err
}

// TailTuples calls fn for every numeric record streamed from the server,
// starting with the retained backlog. If arity is 0 it is fetched from the
// server. It returns nil when ctx is done or the server ends the stream.
func (c *Client) TailTuples(ctx context.Context, arity int, fn func(record.Tuple)) error {
	if arity <= 0 {
		info, err := c.Info(ctx)
		if err != nil {
			return err
		}
		arity = info.Arity
	}
	return c.stream(ctx, "/data", func(body io.Reader) error {
		dec, err := record.NewFrameDecoder(arity)
		if err != nil {
			return err
		}
		buf := make([]byte, readBufferBytes)
		for {
			n, err := body.Read(buf)
			for _, t := range dec.Feed(buf[:n]) {
				fn(t)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	})
}

// TailLines calls fn for every newline-terminated line of the text stream,
// without its newline. A final unterminated line is delivered when the
// stream ends.
func (c *Client) TailLines(ctx context.Context, fn func(string)) error {
	return c.stream(ctx, "/text", func(body io.Reader) error {
		r := bufio.NewReaderSize(body, readBufferBytes)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				if line != "" {
					fn(line)
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			fn(line[:len(line)-1])
		}
	})
}

// Snapshot is the retained window of one store at one instant. Lines keep
// their trailing newline; Raw is the body exactly as served.
type Snapshot struct {
	Store  string
	Arity  int
	Top    uint64
	Bottom uint64
	Raw    []byte
	Tuples []record.Tuple
	Lines  []string
}

// Snapshot fetches the retained window of store ("data" or "text").
func (c *Client) Snapshot(ctx context.Context, store string) (*Snapshot, error) {
	if store != StoreData && store != StoreText {
		return nil, fmt.Errorf("unknown store %q", store)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, "/snapshot/"+store)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap := &Snapshot{Store: store, Raw: raw}
	snap.Top, _ = strconv.ParseUint(resp.Header.Get(relay.HeaderTop), 10, 64)
	snap.Bottom, _ = strconv.ParseUint(resp.Header.Get(relay.HeaderBottom), 10, 64)
	snap.Arity, _ = strconv.Atoi(resp.Header.Get(relay.HeaderArity))

	if store == StoreData {
		tuples, rest, err := record.DecodeTuples(raw, snap.Arity)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("decode snapshot: %d trailing bytes", len(rest))
		}
		snap.Tuples = tuples
		return snap, nil
	}
	snap.Lines = splitLines(string(raw))
	return snap, nil
}

// stream opens path and hands the body to consume, reconnecting if enabled.
func (c *Client) stream(ctx context.Context, path string, consume func(io.Reader) error) error {
	attempt := 0
	for {
		delivered, err := c.streamOnce(ctx, path, consume)
		if ctx.Err() != nil {
			return nil
		}
		if !c.reconnect {
			return err
		}
		if delivered {
			attempt = 0
		}
		if c.onReconnect != nil {
			c.onReconnect(err)
		}
		backoff(ctx, attempt, c.maxBackoff)
		attempt++
	}
}

func (c *Client) streamOnce(ctx context.Context, path string, consume func(io.Reader) error) (bool, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	body := &countingReader{r: resp.Body}
	err = consume(body)
	return body.n > 0, err
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, TargetURL(c.target, path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// TargetURL constructs a URL for the given target and path, respecting scheme prefixes.
func TargetURL(target, path string) string {
	if strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://") {
		return strings.TrimRight(target, "/") + path
	}
	return "http://" + target + path
}

// TailTuples tails the numeric store of the server at target.
func TailTuples(ctx context.Context, target string, arity int, fn func(record.Tuple)) error {
	return New(target).TailTuples(ctx, arity, fn)
}

// TailLines tails the text store of the server at target.
func TailLines(ctx context.Context, target string, fn func(string)) error {
	return New(target).TailLines(ctx, fn)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func backoff(ctx context.Context, attempt int, maxBackoff time.Duration) {
	d := time.Duration(1<<uint(min(attempt, 16))) * 100 * time.Millisecond
	if d > maxBackoff {
		d = maxBackoff
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
