package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/splot/internal/cli"
	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/cloud"
	"github.com/ppiankov/splot/internal/export"
)

// newBackend is replaced in tests.
var newBackend = cloud.NewBackend

type exportOpts struct {
	clientOpts
	store      string
	format     string
	out        string
	zstd       bool
	upload     string
	share      time.Duration
	jsonOutput bool
}

type exportSummary struct {
	Store    string `json:"store"`
	Format   string `json:"format"`
	Output   string `json:"output"`
	Records  int    `json:"records"`
	Bottom   uint64 `json:"bottom"`
	Top      uint64 `json:"top"`
	Bytes    int64  `json:"bytes"`
	Uploaded string `json:"uploaded,omitempty"`
	ShareURL string `json:"share_url,omitempty"`
}

func newExportCmd() *cobra.Command {
	var o exportOpts

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the retained window of a store",
		Long: `Export fetches the records a relay currently retains in one store and
writes them as JSONL, CSV, parquet or raw wire bytes, optionally zstd
compressed and uploaded to s3:// or gs:// storage.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), os.Stdout, o)
		},
	}

	o.register(cmd, false)
	cmd.Flags().StringVar(&o.store, "store", client.StoreData, "store to export: data or text")
	cmd.Flags().StringVar(&o.format, "format", string(export.FormatJSONL), "output format: jsonl, csv, parquet, raw")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "output file (default splot-<store>-<time>.<ext>)")
	cmd.Flags().BoolVar(&o.zstd, "zstd", false, "zstd compress the output")
	cmd.Flags().StringVar(&o.upload, "upload", "", "upload the file to s3://bucket/prefix or gs://bucket/prefix")
	cmd.Flags().DurationVar(&o.share, "share", 0, "after upload, print a download URL valid for this long")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "print the summary as JSON")

	return cmd
}

func runExport(ctx context.Context, w io.Writer, o exportOpts) error {
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return cli.Usagef("invalid --format: %v", err)
	}
	if o.store != client.StoreData && o.store != client.StoreText {
		return cli.Usagef("invalid --store %q: expected data or text", o.store)
	}
	if o.share > 0 && o.upload == "" {
		return cli.Usagef("--share requires --upload")
	}
	var target cloud.Target
	if o.upload != "" {
		if target, err = cloud.ParseURL(o.upload); err != nil {
			return cli.Usagef("invalid --upload: %v", err)
		}
	}

	c, err := o.client()
	if err != nil {
		return err
	}
	reqCtx, cancel := requestContext(ctx)
	defer cancel()
	snap, err := c.Snapshot(reqCtx, o.store)
	if err != nil {
		return cli.Network(fmt.Errorf("fetch snapshot: %w", err))
	}

	out := o.out
	if out == "" {
		out = fmt.Sprintf("splot-%s-%s%s", o.store, time.Now().UTC().Format("20060102T150405Z"), format.Ext())
		if o.zstd {
			out += ".zst"
		}
	}
	if err := export.WriteFile(out, format, o.zstd, snap); err != nil {
		return err
	}
	info, err := os.Stat(out)
	if err != nil {
		return err
	}

	summary := exportSummary{
		Store:   o.store,
		Format:  string(format),
		Output:  out,
		Records: len(snap.Tuples) + len(snap.Lines),
		Bottom:  snap.Bottom,
		Top:     snap.Top,
		Bytes:   info.Size(),
	}

	if o.upload != "" {
		backend, err := newBackend(ctx, target)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", target.Scheme, err)
		}
		key := target.Key(filepath.Base(out))
		if err := cloud.UploadFile(ctx, backend, out, key); err != nil {
			return err
		}
		summary.Uploaded = target.Scheme + "://" + target.Bucket + "/" + key
		if o.share > 0 {
			url, err := backend.ShareURL(ctx, key, o.share)
			if err != nil {
				return err
			}
			summary.ShareURL = url
		}
	}

	if o.jsonOutput {
		return json.NewEncoder(w).Encode(summary)
	}
	_, _ = fmt.Fprintf(os.Stderr, "exported %d %s records [%d, %d) -> %s (%d bytes)\n",
		summary.Records, summary.Store, summary.Bottom, summary.Top, summary.Output, summary.Bytes)
	if summary.Uploaded != "" {
		_, _ = fmt.Fprintf(os.Stderr, "uploaded to %s\n", summary.Uploaded)
	}
	if summary.ShareURL != "" {
		_, _ = fmt.Fprintln(w, summary.ShareURL)
	}
	return nil
}
