package tree

import (
	"fmt"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

// Merge folds diff, as produced by Diff(newTree, old), into old in place.
// Entries of old that diff does not mention are kept. A nil diff is a no-op.
func Merge(old, diff *models.FileTree) error {
	if diff == nil {
		return nil
	}
	if old.Root.ID != diff.Root.ID {
		return rootMismatch("merge", diff.Root.ID, old.Root.ID)
	}
	if diff.Domain != "" {
		old.Domain = diff.Domain
	}
	return mergeDirectory(old.Root, diff.Root)
}

func mergeDirectory(old, diff *models.Directory) error {
	old.Time = diff.Time

	remaining := indexByID(old.Files)
	files := make([]models.File, 0, len(old.Files)+len(diff.Files))
	for _, f := range diff.Files {
		id := f.Base().ID
		o, ok := remaining[id]
		if !ok {
			files = append(files, f)
			continue
		}
		delete(remaining, id)
		if err := mergeFile(o, f); err != nil {
			return err
		}
		files = append(files, o)
	}
	// untouched entries keep their relative order
	for _, f := range old.Files {
		if _, ok := remaining[f.Base().ID]; ok {
			files = append(files, f)
		}
	}
	old.Files = files
	return nil
}

func mergeFile(old, diff models.File) error {
	switch o := old.(type) {
	case *models.Directory:
		d, ok := diff.(*models.Directory)
		if !ok {
			return &KindMismatchError{ID: o.ID, Op: "merge"}
		}
		return mergeDirectory(o, d)
	case *models.RegularFile:
		d, ok := diff.(*models.RegularFile)
		if !ok {
			return &KindMismatchError{ID: o.ID, Op: "merge"}
		}
		o.Time = d.Time
		o.Size = d.Size
		return nil
	default:
		return fmt.Errorf("merge: unknown file type %T", old)
	}
}
