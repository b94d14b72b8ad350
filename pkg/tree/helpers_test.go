package tree

import (
	"time"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

var t0 = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return t0.Add(time.Duration(hours) * time.Hour)
}

// dir builds a directory modified at the given hour.
func dir(id uint64, name string, hour int, files ...models.File) *models.Directory {
	m := at(hour)
	return &models.Directory{
		FileBase: models.FileBase{
			IdName: models.IdName{ID: id, Name: name},
			Time:   models.FileTime{CreatedAt: t0, ModifiedAt: &m},
		},
		Files: files,
	}
}

// file builds a regular file modified at the given hour.
func file(id uint64, name string, hour int) *models.RegularFile {
	m := at(hour)
	size := int64(id * 10)
	return &models.RegularFile{FileBase: models.FileBase{
		IdName: models.IdName{ID: id, Name: name},
		Time:   models.FileTime{CreatedAt: t0, ModifiedAt: &m},
		Size:   &size,
	}}
}

func tree(root *models.Directory) *models.FileTree {
	return &models.FileTree{Domain: "canvas.example.edu", Root: root}
}

// flatten maps every node's path to the node.
func flatten(root *models.Directory) map[string]models.File {
	result := make(map[string]models.File)
	Walk(root, "", func(f models.File, path string) bool {
		result[path] = f
		return true
	})
	return result
}

// ids lists the ids of dir's children in order.
func ids(d *models.Directory) []uint64 {
	out := make([]uint64, 0, len(d.Files))
	for _, f := range d.Files {
		out = append(out, f.Base().ID)
	}
	return out
}

// clone deep-copies a tree so tests can reuse fixtures after Diff and Merge.
func clone(t *models.FileTree) *models.FileTree {
	return &models.FileTree{Domain: t.Domain, Root: cloneDir(t.Root)}
}

func cloneDir(d *models.Directory) *models.Directory {
	c := &models.Directory{FileBase: d.FileBase}
	for _, f := range d.Files {
		switch f := f.(type) {
		case *models.Directory:
			c.Files = append(c.Files, cloneDir(f))
		case *models.RegularFile:
			rf := *f
			c.Files = append(c.Files, &rf)
		}
	}
	return c
}
