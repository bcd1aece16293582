package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nxadm/tail"
)

// LogLine represents a raw line from a log source
type LogLine struct {
	Source    string
	Timestamp time.Time // arrival time, used when the line carries no timestamp
	Content   string
}

// Ingester defines the interface for log sources. The channel closes when the
// source is exhausted or ctx is cancelled.
type Ingester interface {
	Start(ctx context.Context) (<-chan LogLine, error)
	Stop() error
}

// FileTailer implements Ingester for a single file
type FileTailer struct {
	path   string
	follow bool
	t      *tail.Tail
}

// NewFileTailer creates a new tailer for a path. Without follow the file is
// read from start to EOF.
func NewFileTailer(path string, follow bool) *FileTailer {
	return &FileTailer{
		path:   path,
		follow: follow,
	}
}

// Start begins reading the file and returns a channel of lines
func (f *FileTailer) Start(ctx context.Context) (<-chan LogLine, error) {
	// Follow mode waits for the file and reopens it on rotation
	config := tail.Config{
		Follow:    f.follow,
		ReOpen:    f.follow,
		MustExist: !f.follow,
		Poll:      true, // Fallback for some filesystems/docker mounts
		Logger:    tail.DiscardingLogger,
	}

	if f.follow {
		slog.Info("following log file", "path", f.path)
	}

	t, err := tail.TailFile(f.path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to tail file %s: %w", f.path, err)
	}
	f.t = t

	out := make(chan LogLine)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = t.Stop()
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					// We don't log every error to avoid spamming if a file is rotated
					continue
				}
				select {
				case out <- LogLine{Source: f.path, Timestamp: line.Time, Content: line.Text}:
				case <-ctx.Done():
					_ = t.Stop()
					return
				}
			}
		}
	}()

	return out, nil
}

// Stop stops the tailing
func (f *FileTailer) Stop() error {
	if f.t != nil {
		return f.t.Stop()
	}
	return nil
}
