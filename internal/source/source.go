// Package source defines where file contents are fetched from.
// The tree of what exists comes from the Canvas API; the bytes can come
// from Canvas itself, a local directory or an S3 bucket.
package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
)

// Source opens the contents of a remote file by id.
type Source interface {
	// Open returns the file's contents and their size, or -1 if unknown.
	Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, id uint64) (io.ReadCloser, int64, error)

// Open implements Source.
func (f Func) Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error) {
	return f(ctx, id)
}

// IsNotFound reports whether err means the source has no such file.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

type instrumented struct {
	name string
	src  Source
}

// Instrument records a metric and a debug log line for every Open.
func Instrument(name string, src Source) Source {
	return &instrumented{name: name, src: src}
}

func (s *instrumented) Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error) {
	start := time.Now()
	rc, size, err := s.src.Open(ctx, id)
	metrics.RecordRemoteRequest(s.name+"_open", err == nil)
	logging.WithContext(ctx).Debug("open file",
		logging.String("source", s.name),
		logging.Uint64("id", id),
		logging.Int64("size", size),
		logging.Duration("took", time.Since(start)),
		logging.Err(err))
	return rc, size, err
}
