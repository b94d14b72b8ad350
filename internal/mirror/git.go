package mirror

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kkysen/CanvasFileSync/internal/config"
	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/internal/snapshot"
)

// gitignoreLines keep sync bookkeeping out of the mirror's history.
var gitignoreLines = []string{
	"/" + snapshot.FileName,
	"/" + config.FileName,
	".file_tree-*.tmp",
	".canvassync-*.tmp",
}

// Repo versions the mirror directory with git.
type Repo struct {
	root string
	repo *git.Repository
}

// OpenRepo opens the git repository rooted at root, creating it (and a
// .gitignore for the snapshot) if root is not inside any work tree. If root
// is inside a work tree rooted elsewhere, that repository belongs to the
// user: OpenRepo returns nil and the mirror is not committed.
func OpenRepo(root string) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	r, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		if r, err = git.PlainInit(abs, false); err != nil {
			return nil, fmt.Errorf("init mirror repository: %w", err)
		}
		logging.Info("initialized git repository for mirror", logging.String("dir", abs))
	case err != nil:
		return nil, fmt.Errorf("open mirror repository: %w", err)
	}

	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("mirror worktree: %w", err)
	}
	if top := wt.Filesystem.Root(); filepath.Clean(top) != abs {
		logging.Info("mirror is inside another repository, not committing",
			logging.String("repository", top))
		return nil, nil
	}

	if err := ensureGitignore(abs); err != nil {
		return nil, err
	}
	return &Repo{root: abs, repo: r}, nil
}

// ensureGitignore appends the bookkeeping patterns missing from
// <root>/.gitignore.
func ensureGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read .gitignore: %w", err)
	}

	have := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		have[strings.TrimSpace(line)] = true
	}
	var missing []string
	for _, line := range gitignoreLines {
		if !have[line] {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteByte('\n')
	}
	for _, line := range missing {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write .gitignore: %w", err)
	}
	return nil
}

// Commit stages everything in the mirror and commits it. A clean work
// tree is not an error.
func (r *Repo) Commit(message string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage mirror: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("mirror status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "canvassync",
			Email: "canvassync@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit mirror: %w", err)
	}
	logging.Debug("committed mirror", logging.String("commit", hash.String()))
	return nil
}
