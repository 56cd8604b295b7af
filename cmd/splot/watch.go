package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/watch"
)

type watchOpts struct {
	clientOpts
	arity int
	lines int
}

func newWatchCmd() *cobra.Command {
	var o watchOpts

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal dashboard for a running relay",
		Long: `Watch tails both stores of a relay: the latest tuple and record rates in
the header, the text stream in a scrollable pane, and the server's window
and session counters alongside.

Keys: q quit, f follow, j/k scroll, g/G top/bottom, / search, n/N next/prev match.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), o)
		},
	}

	o.register(cmd, true)
	cmd.Flags().IntVar(&o.arity, "arity", 0, "tuple arity (default: ask the server)")
	cmd.Flags().IntVar(&o.lines, "lines", 5000, "text lines kept locally for scrollback")

	return cmd
}

func runWatch(ctx context.Context, o watchOpts) error {
	c, err := o.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed := watch.NewFeed(o.lines)
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Run(ctx, c, o.arity)
	}()

	model := watch.NewModel(feed, c.Stats, o.target, version)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()

	cancel()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}
