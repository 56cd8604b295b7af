package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/cli"
	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/record"
)

type clientOpts struct {
	target     string
	insecure   bool
	reconnect  bool
	maxBackoff string
}

// register adds the connection flags; streaming commands also get the
// reconnect flags.
func (o *clientOpts) register(cmd *cobra.Command, streaming bool) {
	cmd.Flags().StringVar(&o.target, "target", "localhost:8080", "relay address (host:port or URL)")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "skip TLS certificate verification")
	if streaming {
		cmd.Flags().BoolVar(&o.reconnect, "reconnect", true, "resubscribe with backoff when a stream ends")
		cmd.Flags().StringVar(&o.maxBackoff, "max-backoff", "30s", "maximum delay between reconnect attempts")
	}
}

func (o *clientOpts) client() (*client.Client, error) {
	c := client.New(o.target)
	if o.insecure {
		c = client.NewTLS(o.target, true)
	}
	if o.maxBackoff != "" {
		maxBackoff, err := time.ParseDuration(o.maxBackoff)
		if err != nil {
			return nil, cli.Usagef("invalid --max-backoff: %v", err)
		}
		c.SetMaxBackoff(maxBackoff)
	}
	c.SetReconnect(o.reconnect)
	c.SetOnReconnect(func(err error) {
		slog.Debug("stream ended, reconnecting", "target", o.target, "err", err)
	})
	return c, nil
}

type tailOpts struct {
	clientOpts
	text  bool
	arity int
	json  bool
	limit int
}

func newTailCmd() *cobra.Command {
	var o tailOpts

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print records from a running relay",
		Long: `Tail prints the retained backlog of one store and then follows it live.
Numeric tuples print as comma-separated values, text records as-is.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, os.Stdout, o)
		},
	}

	o.register(cmd, true)
	cmd.Flags().BoolVar(&o.text, "text", false, "tail the text store instead of the numeric store")
	cmd.Flags().IntVar(&o.arity, "arity", 0, "tuple arity (default: ask the server)")
	cmd.Flags().BoolVar(&o.json, "json", false, "print tuples as JSON arrays and lines as JSON strings")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 0, "exit after this many records (0 follows forever)")

	return cmd
}

func runTail(ctx context.Context, w io.Writer, o tailOpts) error {
	c, err := o.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	enc := json.NewEncoder(w)
	var writeErr error
	seen := 0
	emit := func(print func() error) {
		if writeErr != nil || (o.limit > 0 && seen >= o.limit) {
			return
		}
		if writeErr = print(); writeErr != nil {
			cancel()
			return
		}
		seen++
		if o.limit > 0 && seen >= o.limit {
			cancel()
		}
	}

	if o.text {
		err = c.TailLines(ctx, func(line string) {
			emit(func() error {
				if o.json {
					return enc.Encode(line)
				}
				_, err := fmt.Fprintln(w, line)
				return err
			})
		})
	} else {
		err = c.TailTuples(ctx, o.arity, func(t record.Tuple) {
			emit(func() error {
				if o.json {
					return enc.Encode(jsonTuple(t))
				}
				_, err := fmt.Fprintln(w, record.FormatTuple(t))
				return err
			})
		})
	}
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}
	if err != nil {
		return cli.Network(err)
	}
	return nil
}

// jsonTuple maps non-finite values to null, which JSON cannot represent.
func jsonTuple(t record.Tuple) []any {
	out := make([]any, len(t))
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = v
	}
	return out
}
