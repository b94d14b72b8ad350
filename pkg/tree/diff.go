package tree

import (
	"fmt"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

// Diff returns the part of newTree that is new or strictly newer than
// oldTree, or nil if nothing changed.
//
// A directory whose modification time is not after its old counterpart's is
// treated as unchanged together with everything below it; the remote side is
// expected to bump a directory whenever a descendant changes.
//
// The result shares nodes with newTree, which the caller hands over.
func Diff(newTree, oldTree *models.FileTree) (*models.FileTree, error) {
	if newTree.Root.ID != oldTree.Root.ID {
		return nil, rootMismatch("diff", newTree.Root.ID, oldTree.Root.ID)
	}
	root, err := diffDirectory(newTree.Root, oldTree.Root)
	if err != nil || root == nil {
		return nil, err
	}
	return &models.FileTree{Domain: newTree.Domain, Root: root}, nil
}

func diffDirectory(newDir, oldDir *models.Directory) (*models.Directory, error) {
	if !newDir.Time.After(oldDir.Time) {
		return nil, nil
	}
	old := indexByID(oldDir.Files)
	files := make([]models.File, 0, len(newDir.Files))
	for _, f := range newDir.Files {
		o, ok := old[f.Base().ID]
		if !ok {
			files = append(files, f)
			continue
		}
		changed, err := diffFile(f, o)
		if err != nil {
			return nil, err
		}
		if changed != nil {
			files = append(files, changed)
		}
	}
	return &models.Directory{FileBase: newDir.FileBase, Files: files}, nil
}

// diffFile returns a nil interface when f is unchanged.
func diffFile(newFile, oldFile models.File) (models.File, error) {
	switch n := newFile.(type) {
	case *models.Directory:
		o, ok := oldFile.(*models.Directory)
		if !ok {
			return nil, &KindMismatchError{ID: n.ID, Op: "diff"}
		}
		d, err := diffDirectory(n, o)
		if err != nil || d == nil {
			return nil, err
		}
		return d, nil
	case *models.RegularFile:
		o, ok := oldFile.(*models.RegularFile)
		if !ok {
			return nil, &KindMismatchError{ID: n.ID, Op: "diff"}
		}
		if n.Time.After(o.Time) {
			return n, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("diff: unknown file type %T", newFile)
	}
}
