package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/cli"
	"github.com/ppiankov/splot/internal/redact"
	"github.com/ppiankov/splot/internal/relay"
	"github.com/ppiankov/splot/internal/source"
)

const shutdownTimeout = 5 * time.Second

type serveOpts struct {
	listen         string
	arity          int
	dataCapacity   int
	textCapacity   int
	mode           string
	follow         string
	fromStart      bool
	demo           bool
	demoInterval   time.Duration
	noStdin        bool
	redact         string
	redactPatterns string
	page           string
	gzip           bool
	audit          string
	maxBatch       int
	writeTimeout   string
	tlsCert        string
	tlsKey         string

	// set by tests
	registry *prometheus.Registry
	stdin    io.Reader
	onListen func(addr string)
}

func newServeCmd() *cobra.Command {
	var o serveOpts

	cmd := &cobra.Command{
		Use:   "serve [file]",
		Short: "Start the relay",
		Long: `Start the relay and feed it from stdin, a followed file, or a demo generator.

Each input line that parses as exactly --arity numbers becomes a numeric
tuple; anything else becomes a text line. Readers tail /data and /text over
HTTP or /ws/data and /ws/text over WebSocket.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				o.follow = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, o)
		},
	}

	cmd.Flags().StringVar(&o.listen, "listen", ":8080", "address to listen on")
	cmd.Flags().IntVar(&o.arity, "arity", relay.DefaultArity, "number of values per numeric tuple")
	cmd.Flags().IntVar(&o.dataCapacity, "data-capacity", 0, "numeric records retained (default 10000)")
	cmd.Flags().IntVar(&o.textCapacity, "text-capacity", 0, "text records retained (default 10000)")
	cmd.Flags().StringVar(&o.mode, "mode", "auto", "input routing: auto, data, or text")
	cmd.Flags().BoolVar(&o.fromStart, "from-start", false, "read a followed file from the beginning")
	cmd.Flags().BoolVar(&o.demo, "demo", false, "push a synthetic demo series instead of reading input")
	cmd.Flags().DurationVar(&o.demoInterval, "demo-interval", source.DefaultDemoInterval, "demo push period")
	cmd.Flags().BoolVar(&o.noStdin, "no-stdin", false, "do not read stdin when no file is given")
	cmd.Flags().StringVar(&o.redact, "redact", "", "enable PII redaction of text lines (true or comma-separated pattern names)")
	cmd.Flags().StringVar(&o.redactPatterns, "redact-patterns", "", "path to custom redaction patterns YAML file")
	cmd.Flags().StringVar(&o.page, "page", "", "HTML file served on GET /")
	cmd.Flags().BoolVar(&o.gzip, "gzip", false, "gzip tail streams for clients that accept it")
	cmd.Flags().StringVar(&o.audit, "audit", "", "append session audit entries to this JSONL file")
	cmd.Flags().IntVar(&o.maxBatch, "max-batch", 0, "maximum records per emitted chunk")
	cmd.Flags().StringVar(&o.writeTimeout, "write-timeout", "10s", "deadline for writing one chunk to a reader (0 disables)")
	cmd.Flags().StringVar(&o.tlsCert, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&o.tlsKey, "tls-key", "", "TLS key file")

	return cmd
}

func runServe(ctx context.Context, o serveOpts) error {
	if o.arity <= 0 {
		return cli.Usagef("--arity must be positive, got %d", o.arity)
	}
	mode, err := source.ParseMode(o.mode)
	if err != nil {
		return cli.Usagef("invalid --mode: %v", err)
	}
	writeTimeout, err := time.ParseDuration(o.writeTimeout)
	if err != nil {
		return cli.Usagef("invalid --write-timeout: %v", err)
	}
	if (o.tlsCert == "") != (o.tlsKey == "") {
		return cli.Usagef("--tls-cert and --tls-key must be set together")
	}
	if o.demo && o.follow != "" {
		return cli.Usagef("--demo cannot be combined with a followed file")
	}

	logger := slog.Default()

	rl := relay.New(relay.Config{
		Arity:        o.arity,
		DataCapacity: o.dataCapacity,
		TextCapacity: o.textCapacity,
	})

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if o.registry != nil {
		reg, gatherer = o.registry, o.registry
	}
	rl.SetMetrics(relay.NewMetrics(reg))
	rl.SetStats(relay.NewStats())

	redactInfo := "off"
	redactEnabled, redactNames := redact.ParseFlag(o.redact)
	if redactEnabled {
		redactor, err := redact.New(redactNames)
		if err != nil {
			return cli.Usagef("invalid --redact: %v", err)
		}
		if o.redactPatterns != "" {
			if err := redactor.LoadFile(o.redactPatterns); err != nil {
				return fmt.Errorf("load custom patterns: %w", err)
			}
		}
		rl.SetRedactor(redactor)
		redactInfo = fmt.Sprintf("on (%d patterns)", len(redactor.Names()))
	}

	var audit *relay.AuditLogger
	if o.audit != "" {
		audit, err = relay.NewAuditLogger(o.audit)
		if err != nil {
			return err
		}
		defer func() { _ = audit.Close() }()
	}

	srv := relay.NewServer(o.listen, rl)
	srv.SetVersion(version)
	srv.SetLogger(logger)
	srv.SetAuditLogger(audit)
	srv.SetPage(o.page)
	srv.SetGzip(o.gzip)
	srv.SetMaxBatch(o.maxBatch)
	srv.SetWriteTimeout(writeTimeout)
	srv.SetGatherer(gatherer)

	ln, err := net.Listen("tcp", o.listen)
	if err != nil {
		return cli.Network(fmt.Errorf("listen on %s: %w", o.listen, err))
	}
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		var srvErr error
		if o.tlsCert != "" {
			srvErr = srv.ServeTLS(ln, o.tlsCert, o.tlsKey)
		} else {
			srvErr = srv.Serve(ln)
		}
		if srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			errCh <- srvErr
		}
	}()

	srcCtx, cancelSource := context.WithCancel(ctx)
	defer cancelSource()
	srcDone := make(chan error, 1)
	srcName := startSource(srcCtx, o, rl, mode, srcDone)

	logger.Info("relay listening",
		"addr", addr,
		"arity", rl.Arity(),
		"data_capacity", rl.Data().Capacity(),
		"text_capacity", rl.Text().Capacity(),
		"source", srcName,
		"redact", redactInfo,
	)
	audit.Log(relay.AuditEntry{Event: "server_started"})
	if o.onListen != nil {
		o.onListen(addr)
	}

	var runErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case err := <-errCh:
			runErr = err
			break wait
		case err := <-srcDone:
			srcDone = nil
			if err != nil {
				logger.Error("source stopped", "source", srcName, "err", err)
				continue
			}
			// the stores stay readable after input ends
			logger.Info("source finished", "source", srcName)
		}
	}

	cancelSource()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "err", err)
	}

	snap := rl.Stats()
	audit.Log(relay.AuditEntry{Event: "server_stopped"})
	logger.Info("relay stopped",
		"tuples", snap.TuplesPushed,
		"lines", snap.LinesPushed,
		"rejected", snap.Rejected,
		"evicted", snap.SessionsEvicted,
		"bytes_emitted", snap.BytesEmitted,
	)
	return runErr
}

// startSource launches the configured producer and reports its result on
// done. It returns a name for logging.
func startSource(ctx context.Context, o serveOpts, rl *relay.Relay, mode source.Mode, done chan<- error) string {
	run := func(name string, fn func() error) string {
		go func() { done <- fn() }()
		return name
	}
	switch {
	case o.demo:
		return run("demo", func() error { return source.Demo(ctx, rl, o.demoInterval) })
	case o.follow != "":
		return run(o.follow, func() error { return source.Follow(ctx, o.follow, rl, mode, o.fromStart) })
	case o.noStdin:
		return "none"
	default:
		in := o.stdin
		if in == nil {
			in = os.Stdin
		}
		return run("stdin", func() error { return source.ReadLines(ctx, in, rl, mode) })
	}
}
