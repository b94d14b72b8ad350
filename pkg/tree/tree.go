// Package tree diffs, merges and walks snapshot file trees.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

var (
	// ErrKindMismatch is returned when a directory and a regular file share an id.
	ErrKindMismatch = errors.New("directory and regular file share an id")

	// ErrRootMismatch is returned when two trees with different roots are combined.
	ErrRootMismatch = errors.New("tree roots differ")
)

// KindMismatchError carries the offending id.
type KindMismatchError struct {
	ID uint64
	Op string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("%s: id %d: %v", e.Op, e.ID, ErrKindMismatch)
}

func (e *KindMismatchError) Unwrap() error {
	return ErrKindMismatch
}

func rootMismatch(op string, newID, oldID uint64) error {
	return fmt.Errorf("%s: root %d vs %d: %w", op, newID, oldID, ErrRootMismatch)
}

// indexByID maps child ids to children.
func indexByID(files []models.File) map[uint64]models.File {
	m := make(map[uint64]models.File, len(files))
	for _, f := range files {
		m[f.Base().ID] = f
	}
	return m
}

// Counts holds node counts of a tree.
type Counts struct {
	Directories int
	Files       int
	Bytes       int64
	Newest      time.Time
}

// Count counts the nodes below (and including) root.
func Count(root *models.Directory) Counts {
	var c Counts
	Walk(root, "", func(f models.File, _ string) bool {
		switch f := f.(type) {
		case *models.Directory:
			c.Directories++
		case *models.RegularFile:
			c.Files++
			if f.Size != nil {
				c.Bytes += *f.Size
			}
		}
		if m := models.ModTime(f); m.After(c.Newest) {
			c.Newest = m
		}
		return true
	})
	return c
}

// ChildPath constructs a child path from parent + name.
func ChildPath(parentPath, name string) string {
	return filepath.Join(parentPath, name)
}

// Walk visits root and its descendants depth-first, parents first. The path
// passed to fn is parentPath joined with every name from root down. Returning
// false from fn for a directory skips its children.
func Walk(root *models.Directory, parentPath string, fn func(f models.File, path string) bool) {
	if root == nil {
		return
	}
	walk(root, parentPath, fn)
}

func walk(f models.File, parentPath string, fn func(models.File, string) bool) {
	path := ChildPath(parentPath, f.Base().Name)
	if !fn(f, path) {
		return
	}
	if dir, ok := f.(*models.Directory); ok {
		for _, child := range dir.Files {
			walk(child, path, fn)
		}
	}
}

// PropagateTimes raises every directory's modification time to the newest
// modification time found below it and returns the root's resulting time.
// Tree sources whose directories do not track descendant changes call this
// before handing a tree to Diff.
func PropagateTimes(dir *models.Directory) time.Time {
	newest := dir.Time.Modified()
	for _, child := range dir.Files {
		var t time.Time
		switch child := child.(type) {
		case *models.Directory:
			t = PropagateTimes(child)
		case *models.RegularFile:
			t = child.Time.Modified()
		}
		if t.After(newest) {
			newest = t
		}
	}
	if newest.After(dir.Time.Modified()) {
		m := newest
		dir.Time.ModifiedAt = &m
	}
	return newest
}
