// Package export writes the retained window of a store to a file.
package export

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/record"
)

// Format identifies the output format.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatRaw     Format = "raw"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSONL, FormatCSV, FormatParquet, FormatRaw:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %q (use jsonl, csv, parquet or raw)", s)
}

// Ext returns the conventional file extension for f, without compression.
func (f Format) Ext() string {
	if f == FormatRaw {
		return ".bin"
	}
	return "." + string(f)
}

// rowWriter writes one store's records in an output format.
type rowWriter interface {
	WriteTuple(index uint64, t record.Tuple) error
	WriteLine(index uint64, line string) error
	Close() error
}

// Write encodes snap to dst in format. Rows carry their logical index,
// starting at snap.Bottom.
func Write(dst io.Writer, format Format, snap *client.Snapshot) error {
	if format == FormatRaw {
		_, err := dst.Write(snap.Raw)
		return err
	}

	w, err := newRowWriter(dst, format, snap)
	if err != nil {
		return err
	}
	if snap.Store == client.StoreData {
		for i, t := range snap.Tuples {
			if err := w.WriteTuple(snap.Bottom+uint64(i), t); err != nil {
				_ = w.Close()
				return fmt.Errorf("write row %d: %w", i, err)
			}
		}
	} else {
		for i, line := range snap.Lines {
			if err := w.WriteLine(snap.Bottom+uint64(i), line); err != nil {
				_ = w.Close()
				return fmt.Errorf("write row %d: %w", i, err)
			}
		}
	}
	return w.Close()
}

// WriteFile writes snap to path, wrapped in a zstd stream if compress is set.
func WriteFile(path string, format Format, compress bool, snap *client.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	var out io.Writer = f
	var zw *zstd.Encoder
	if compress {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("create zstd writer: %w", err)
		}
		out = zw
	}

	if err := Write(out, format, snap); err != nil {
		if zw != nil {
			_ = zw.Close()
		}
		_ = f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			_ = f.Close()
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	return f.Close()
}

func newRowWriter(dst io.Writer, format Format, snap *client.Snapshot) (rowWriter, error) {
	switch format {
	case FormatJSONL:
		return newJSONLWriter(dst), nil
	case FormatCSV:
		return newCSVWriter(dst, snap)
	case FormatParquet:
		return newParquetWriter(dst, snap.Store), nil
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
}
