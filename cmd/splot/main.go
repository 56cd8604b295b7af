package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/cli"
	"github.com/ppiankov/splot/internal/config"
)

var version = "dev"

const defaultTimeout = 30 * time.Second

var (
	cfg        *config.Config
	verbose    bool
	jsonErrors bool
	timeoutStr string
)

func main() {
	if err := execute(); err != nil {
		cli.FormatError(os.Stderr, err, jsonErrors)
		os.Exit(cli.ExitCode(err))
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "splot",
		Short:         "Live record relay for streaming plots",
		Long:          "Relay numeric tuples and text lines from a producer to any number of live HTTP and WebSocket readers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg == nil {
				cfg = config.Load()
			}
			if cfg.Defaults.Verbose && !cmd.Flags().Changed("verbose") {
				verbose = true
			}
			slog.SetDefault(newLogger(os.Stderr, verbose))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonErrors, "json-errors", false, "print errors as JSON")
	root.PersistentFlags().StringVar(&timeoutStr, "timeout", "", "timeout for one-shot requests (default 30s)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTailCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newCompletionCmd())
	return root
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// requestContext returns a context bounded by the configured timeout for
// one-shot requests. The caller must call cancel when done.
func requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout())
}

func requestTimeout() time.Duration {
	if timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil {
			return d
		}
	} else if cfg != nil && cfg.Defaults.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Defaults.Timeout); err == nil {
			return d
		}
	}
	return defaultTimeout
}
