// Package mirror runs sync passes: fetch the remote tree, diff it against
// the snapshot, materialize the difference and record it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/ignore"
	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/materialize"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
	"github.com/kkysen/CanvasFileSync/internal/plan"
	"github.com/kkysen/CanvasFileSync/internal/snapshot"
	"github.com/kkysen/CanvasFileSync/internal/source"
	"github.com/kkysen/CanvasFileSync/pkg/models"
	"github.com/kkysen/CanvasFileSync/pkg/tree"
)

// ErrDomainMismatch is returned when the snapshot was taken of another
// Canvas domain.
var ErrDomainMismatch = errors.New("snapshot belongs to another domain")

// TreeSource produces the current remote tree.
type TreeSource interface {
	FetchTree(ctx context.Context) (*models.FileTree, error)
}

// Options configures a Syncer.
type Options struct {
	Root        string        // mirror directory
	Filter      ignore.Filter // nil ignores nothing
	Concurrency int           // simultaneous downloads
	Repo        *Repo         // commits each run's changes when set
}

// Syncer mirrors a remote tree into a local directory. Runs are
// serialized; the snapshot is written at most once per run.
type Syncer struct {
	remote       TreeSource
	store        snapshot.Store
	materializer *materialize.Materializer
	root         string
	filter       ignore.Filter
	repo         *Repo

	mu sync.Mutex
}

// New creates a Syncer.
func New(remote TreeSource, store snapshot.Store, src source.Source, opts Options) *Syncer {
	filter := opts.Filter
	if filter == nil {
		filter = ignore.Nop{}
	}
	return &Syncer{
		remote:       remote,
		store:        store,
		materializer: materialize.New(src, opts.Concurrency),
		root:         opts.Root,
		filter:       filter,
		repo:         opts.Repo,
	}
}

// Report describes one run.
type Report struct {
	RunID    string
	Changed  bool
	Plan     plan.Stats
	Result   *materialize.Result
	Rewound  int // failed files left for the next run
	Skipped  []*plan.InvalidNameError
	Duration time.Duration
}

// Sync runs one pass. When some files fail, the rest of the pass is still
// recorded and the first file error is returned along with the report.
// Structural errors, directory errors and persistence errors leave the
// snapshot untouched.
func (s *Syncer) Sync(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, runID := logging.WithRunID(ctx)
	log := logging.WithContext(ctx)
	start := time.Now()
	report := &Report{RunID: runID}

	err := s.sync(ctx, report)
	report.Duration = time.Since(start)
	metrics.RecordSyncRun(report.Duration, err == nil)

	if err != nil {
		log.Error("sync failed", logging.Err(err), logging.Duration("took", report.Duration))
	} else {
		log.Info("sync finished",
			logging.Bool("changed", report.Changed),
			logging.Duration("took", report.Duration))
	}
	return report, err
}

func (s *Syncer) sync(ctx context.Context, report *Report) error {
	log := logging.WithContext(ctx)

	newTree, err := s.remote.FetchTree(ctx)
	if err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}
	old, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if old.IsEmpty() {
		old = models.NewEmptyTree(newTree.Domain, newTree.Root.IdName)
	}
	if old.Domain != "" && newTree.Domain != "" && old.Domain != newTree.Domain {
		return fmt.Errorf("%w: %s, not %s", ErrDomainMismatch, old.Domain, newTree.Domain)
	}

	report.Skipped = plan.DropCollisions(newTree.Root, s.root)
	for _, e := range report.Skipped {
		log.Warn("skipping entry whose name a sibling uses", logging.Err(e))
	}

	diff, err := tree.Diff(newTree, old)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if diff == nil {
		log.Info("mirror is up to date")
		return nil
	}
	report.Changed = true

	p := plan.Build(diff.Root, s.root, s.filter)
	report.Plan = p.Stats()
	report.Skipped = append(report.Skipped, p.Skipped...)
	for _, e := range p.Skipped {
		log.Warn("skipping entry with unusable name", logging.Err(e))
	}
	log.Info("planned",
		logging.Int("directories", report.Plan.Directories),
		logging.Int("files", report.Plan.Files),
		logging.Int64("bytes", report.Plan.Bytes),
		logging.Int("ignored", report.Plan.Ignored))

	result, applyErr := s.materializer.Apply(ctx, p)
	report.Result = result
	if applyErr != nil && len(result.Failed) == 0 {
		return fmt.Errorf("materialize: %w", applyErr)
	}
	if len(result.Failed) > 0 {
		failed := result.FailedPaths()
		report.Rewound = tree.Rewind(diff, old, s.root, func(path string) bool {
			return failed[path]
		})
		log.Warn("files failed, leaving them for the next run", logging.Int("count", report.Rewound))
	}

	if err := tree.Merge(old, diff); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	// recorded even when the run was cancelled mid-download
	if err := s.store.Save(context.WithoutCancel(ctx), old); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	counts := tree.Count(old.Root)
	metrics.SetSnapshotSize(counts.Directories, counts.Files)

	if s.repo != nil && result.Downloaded > 0 {
		msg := fmt.Sprintf("Sync %s: %d files", time.Now().Format(time.RFC3339), result.Downloaded)
		if err := s.repo.Commit(msg); err != nil {
			log.Warn("commit mirror failed", logging.Err(err))
		}
	}

	if applyErr != nil {
		return fmt.Errorf("materialize: %w", applyErr)
	}
	return nil
}

// Watch runs Sync now and then every interval until ctx is done. Failed
// runs are logged and retried on the next tick.
func (s *Syncer) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("sync run failed, retrying next interval",
				logging.Duration("interval", interval), logging.Err(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
