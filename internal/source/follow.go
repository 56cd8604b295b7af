package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval re-reads the file even without events, for filesystems that
// do not deliver them.
const pollInterval = time.Second

// Follow pushes lines appended to the file at path until ctx is done. It
// starts at the end of the file unless fromStart is set. A rotated file
// (removed or renamed, then recreated) is reopened from its start; a
// truncated file is re-read from offset zero.
func Follow(ctx context.Context, path string, sink Sink, mode Mode, fromStart bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	f := &follower{path: filepath.Clean(path), sink: sink, mode: mode}
	if err := f.open(!fromStart); err != nil {
		return err
	}
	defer f.close()

	// Watching the directory keeps events flowing across rotation.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}
	f.drain()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				f.drain()
				f.close()
				if err := f.open(false); err != nil {
					slog.Warn("reopen followed file", "path", f.path, "error", err)
				}
				f.drain()
			case ev.Has(fsnotify.Write):
				f.drain()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				f.drain()
				f.close()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "path", f.path, "error", err)

		case <-ticker.C:
			if f.file == nil {
				if err := f.open(false); err == nil {
					slog.Debug("followed file reappeared", "path", f.path)
				}
			}
			f.drain()
		}
	}
}

type follower struct {
	path    string
	sink    Sink
	mode    Mode
	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial strings.Builder
}

func (f *follower) open(seekEnd bool) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	var offset int64
	if seekEnd {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			_ = file.Close()
			return fmt.Errorf("seek %s: %w", f.path, err)
		}
	}
	f.file = file
	f.reader = bufio.NewReader(file)
	f.offset = offset
	f.partial.Reset()
	return nil
}

func (f *follower) close() {
	if f.file != nil {
		_ = f.file.Close()
		f.file = nil
	}
}

// drain pushes every complete line available. A trailing partial line is
// held until its newline arrives.
func (f *follower) drain() {
	if f.file == nil {
		return
	}
	if info, err := f.file.Stat(); err == nil && info.Size() < f.offset {
		slog.Debug("followed file truncated", "path", f.path)
		if _, err := f.file.Seek(0, io.SeekStart); err != nil {
			return
		}
		f.reader.Reset(f.file)
		f.offset = 0
		f.partial.Reset()
	}
	for {
		chunk, err := f.reader.ReadString('\n')
		f.offset += int64(len(chunk))
		if err != nil {
			f.partial.WriteString(chunk)
			if !errors.Is(err, io.EOF) {
				slog.Warn("read followed file", "path", f.path, "error", err)
			}
			return
		}
		line := chunk[:len(chunk)-1]
		if f.partial.Len() > 0 {
			f.partial.WriteString(line)
			line = f.partial.String()
			f.partial.Reset()
		}
		push(f.sink, f.mode, line)
	}
}
