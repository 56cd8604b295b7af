package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "tail", "watch", "export", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{"completion", shell})
			cfg = &config.Config{}
			if err := root.Execute(); err != nil {
				t.Fatalf("completion %s: %v", shell, err)
			}
			if !strings.Contains(out.String(), "splot") {
				t.Errorf("completion %s output does not mention splot", shell)
			}
		})
	}
}

func TestCompletionRejectsUnknownShell(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	cfg = &config.Config{}
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unsupported shell")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
	newLogger(&buf, true).Debug("shown", "k", 1)
	if !strings.Contains(buf.String(), "msg=shown") || !strings.Contains(buf.String(), "k=1") {
		t.Errorf("got %q", buf.String())
	}
}

func TestVerboseFromConfig(t *testing.T) {
	defer func(prev *slog.Logger) { slog.SetDefault(prev) }(slog.Default())
	cfg = &config.Config{Defaults: config.DefaultsConfig{Verbose: true}}
	verbose = false
	defer func() { cfg, verbose = nil, false }()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "bash"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !verbose {
		t.Error("defaults.verbose in config should enable verbose")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger should be at debug level")
	}
}

func TestRequestTimeout(t *testing.T) {
	defer func() { cfg, timeoutStr = nil, "" }()

	cfg, timeoutStr = nil, ""
	if got := requestTimeout(); got != defaultTimeout {
		t.Errorf("default = %v, want %v", got, defaultTimeout)
	}

	cfg = &config.Config{Defaults: config.DefaultsConfig{Timeout: "7s"}}
	if got := requestTimeout(); got != 7*time.Second {
		t.Errorf("config = %v, want 7s", got)
	}

	timeoutStr = "2s"
	if got := requestTimeout(); got != 2*time.Second {
		t.Errorf("flag = %v, want 2s (flag beats config)", got)
	}

	timeoutStr = "bogus"
	if got := requestTimeout(); got != defaultTimeout {
		t.Errorf("bad flag = %v, want default", got)
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	defer func() { cfg = nil }()
	cfg = &config.Config{
		Serve: config.ServeConfig{
			Addr:         ":9999",
			Arity:        4,
			Mode:         "text",
			Gzip:         true,
			WriteTimeout: "3s",
		},
		Client: config.ClientConfig{Target: "relay:1234"},
	}

	serve := newServeCmd()
	if err := serve.Flags().Parse([]string{"--arity", "3"}); err != nil {
		t.Fatal(err)
	}
	applyConfigDefaults(serve)
	checks := map[string]string{
		"listen":        ":9999",
		"arity":         "3", // set on the command line
		"mode":          "text",
		"gzip":          "true",
		"write-timeout": "3s",
		"data-capacity": "0",
	}
	assertFlags(t, serve, checks)

	tail := newTailCmd()
	applyConfigDefaults(tail)
	assertFlags(t, tail, map[string]string{"target": "relay:1234"})
}

func TestApplyConfigDefaultsNilConfig(t *testing.T) {
	cfg = nil
	cmd := newServeCmd()
	applyConfigDefaults(cmd)
	assertFlags(t, cmd, map[string]string{"listen": ":8080"})
}

func assertFlags(t *testing.T, cmd *cobra.Command, want map[string]string) {
	t.Helper()
	for name, v := range want {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("flag --%s missing", name)
			continue
		}
		if f.Value.String() != v {
			t.Errorf("--%s = %q, want %q", name, f.Value.String(), v)
		}
	}
}
