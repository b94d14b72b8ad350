// Package materialize applies a plan to the local filesystem.
//
// Directory tasks run one after another in plan order, so parents exist
// before their children. File tasks then run concurrently, bounded by
// Concurrency, and every one of them is awaited before Apply returns.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
	"github.com/kkysen/CanvasFileSync/internal/plan"
	"github.com/kkysen/CanvasFileSync/internal/source"
)

// DefaultConcurrency is the number of simultaneous downloads.
const DefaultConcurrency = 8

// ErrNotDirectory is returned when a directory task's path exists but is
// not a directory.
var ErrNotDirectory = errors.New("exists and is not a directory")

// TaskError is the failure of a single task.
type TaskError struct {
	Task plan.Task
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s (id %d): %v", e.Task.Path, e.Task.ID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Result records what one Apply did.
type Result struct {
	Directories int
	Downloaded  int
	Bytes       int64
	Failed      []*TaskError
	Duration    time.Duration
}

// FailedPaths returns the set of paths whose file task failed.
func (r *Result) FailedPaths() map[string]bool {
	paths := make(map[string]bool, len(r.Failed))
	for _, e := range r.Failed {
		paths[e.Task.Path] = true
	}
	return paths
}

// Materializer writes planned directories and files.
type Materializer struct {
	source      source.Source
	concurrency int
}

// New creates a Materializer fetching file contents from src.
func New(src source.Source, concurrency int) *Materializer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Materializer{source: src, concurrency: concurrency}
}

// Apply runs the plan. A directory failure stops the run before any file
// is fetched and is returned as is. File failures are collected in
// Result.Failed in task order; the first of them is returned. Files written
// successfully stay on disk either way.
func (m *Materializer) Apply(ctx context.Context, p *plan.Plan) (*Result, error) {
	start := time.Now()
	result := &Result{}
	log := logging.WithContext(ctx)

	for _, t := range p.Directories {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, &TaskError{Task: t, Err: err}
		}
		if err := EnsureDir(t.Path, t.ModTime); err != nil {
			metrics.RecordDirectory(false)
			log.Error("create directory failed", logging.String("path", t.Path), logging.Err(err))
			result.Duration = time.Since(start)
			return result, &TaskError{Task: t, Err: err}
		}
		metrics.RecordDirectory(true)
		result.Directories++
	}

	errs := m.downloadAll(ctx, p.Files, result)
	for i, err := range errs {
		if err != nil {
			result.Failed = append(result.Failed, &TaskError{Task: p.Files[i], Err: err})
		}
	}

	// writing files bumped the directories' mtimes; deepest first
	for i := len(p.Directories) - 1; i >= 0; i-- {
		t := p.Directories[i]
		if err := setTimes(t.Path, t.ModTime); err != nil {
			log.Warn("restore directory time failed", logging.String("path", t.Path), logging.Err(err))
		}
	}

	result.Duration = time.Since(start)
	log.Info("plan applied",
		logging.Int("directories", result.Directories),
		logging.Int("downloaded", result.Downloaded),
		logging.Int64("bytes", result.Bytes),
		logging.Int("failed", len(result.Failed)),
		logging.Duration("took", result.Duration))

	if len(result.Failed) > 0 {
		return result, result.Failed[0]
	}
	return result, nil
}

// downloadAll runs the file tasks with bounded concurrency and returns
// their errors indexed like tasks. Tasks not started before ctx is done
// fail with the context error.
func (m *Materializer) downloadAll(ctx context.Context, tasks []plan.Task, result *Result) []error {
	errs := make([]error, len(tasks))
	sem := make(chan struct{}, m.concurrency)
	var (
		wg         sync.WaitGroup
		downloaded atomic.Int64
		bytes      atomic.Int64
	)

	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, t plan.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			n, err := m.download(ctx, t)
			metrics.RecordDownload(n, time.Since(start), err == nil)
			if err != nil {
				logging.WithContext(ctx).Warn("download failed",
					logging.String("path", t.Path),
					logging.Uint64("id", t.ID),
					logging.Err(err))
				errs[i] = err
				return
			}
			downloaded.Add(1)
			bytes.Add(n)
		}(i, t)
	}

	wg.Wait()
	result.Downloaded = int(downloaded.Load())
	result.Bytes = bytes.Load()
	return errs
}

// download fetches one file into a temp file next to its destination,
// renames it into place and sets its times.
func (m *Materializer) download(ctx context.Context, t plan.Task) (int64, error) {
	body, _, err := m.source.Open(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(t.Path), ".canvassync-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, t.Path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename temp: %w", err)
	}
	if err := setTimes(t.Path, t.ModTime); err != nil {
		return n, err
	}
	return n, nil
}

// EnsureDir creates path (and missing parents) and sets its times.
// An existing directory is fine; an existing non-directory is
// ErrNotDirectory.
func EnsureDir(path string, modTime time.Time) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return setTimes(path, modTime)
}

// setTimes sets both atime and mtime. A zero time leaves them alone.
func setTimes(path string, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	if err := os.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("set times on %s: %w", path, err)
	}
	return nil
}
