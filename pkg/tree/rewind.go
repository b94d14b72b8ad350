package tree

import "github.com/kkysen/CanvasFileSync/pkg/models"

// Rewind drops the regular files of diff for which failed(path) is true, so
// that merging diff does not record them as mirrored. Every directory that
// lost a descendant gets back the timestamp it has in old (the zero time if
// it is new), which makes the next Diff descend to the dropped files again.
//
// Paths are built like Walk builds them, starting from rootPath.
// Rewind returns the number of files dropped.
func Rewind(diff, old *models.FileTree, rootPath string, failed func(path string) bool) int {
	if diff == nil {
		return 0
	}
	var oldRoot *models.Directory
	if old != nil && old.Root != nil && old.Root.ID == diff.Root.ID {
		oldRoot = old.Root
	}
	return rewindDirectory(diff.Root, oldRoot, ChildPath(rootPath, diff.Root.Name), failed)
}

func rewindDirectory(diff, old *models.Directory, path string, failed func(string) bool) int {
	var oldFiles map[uint64]models.File
	if old != nil {
		oldFiles = indexByID(old.Files)
	}

	dropped := 0
	files := make([]models.File, 0, len(diff.Files))
	for _, f := range diff.Files {
		childPath := ChildPath(path, f.Base().Name)
		switch f := f.(type) {
		case *models.RegularFile:
			if failed(childPath) {
				dropped++
				continue
			}
		case *models.Directory:
			oldDir, _ := oldFiles[f.ID].(*models.Directory)
			dropped += rewindDirectory(f, oldDir, childPath, failed)
		}
		files = append(files, f)
	}
	diff.Files = files

	if dropped > 0 {
		if old != nil {
			diff.Time = old.Time
		} else {
			diff.Time = models.FileTime{}
		}
	}
	return dropped
}
