// Package plan flattens a diff tree into the directory and file tasks that
// bring the mirror up to date.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/ignore"
	"github.com/kkysen/CanvasFileSync/internal/metrics"
	"github.com/kkysen/CanvasFileSync/pkg/models"
	"github.com/kkysen/CanvasFileSync/pkg/tree"
)

// Task is one filesystem operation: create a directory or download a file.
type Task struct {
	Path    string
	ID      uint64
	Size    *int64
	ModTime time.Time
}

// Plan holds the tasks for one sync run.
// Directories are ordered parents before children.
type Plan struct {
	Directories []Task
	Files       []Task

	// Skipped holds nodes whose names cannot be used as path segments.
	// Their subtrees are not planned.
	Skipped []*InvalidNameError

	// Ignored counts nodes excluded by the filter (subtrees count once).
	Ignored int
}

// Stats summarizes a plan.
type Stats struct {
	Directories int
	Files       int
	Bytes       int64
	Skipped     int
	Ignored     int
}

// Stats returns counts and the total of the known file sizes.
func (p *Plan) Stats() Stats {
	s := Stats{
		Directories: len(p.Directories),
		Files:       len(p.Files),
		Skipped:     len(p.Skipped),
		Ignored:     p.Ignored,
	}
	for _, f := range p.Files {
		if f.Size != nil {
			s.Bytes += *f.Size
		}
	}
	return s
}

// InvalidNameError reports a node whose name cannot be used as a path
// segment: it is unsafe, or a sibling already uses it.
type InvalidNameError struct {
	Parent string
	ID     uint64
	Name   string

	// Collides is set when the name itself is fine but OwnerID, a sibling,
	// is materialized under it.
	Collides bool
	OwnerID  uint64
}

func (e *InvalidNameError) Error() string {
	if e.Collides {
		return fmt.Sprintf("name %q for id %d under %s is already used by id %d", e.Name, e.ID, e.Parent, e.OwnerID)
	}
	return fmt.Sprintf("invalid name %q for id %d under %s", e.Name, e.ID, e.Parent)
}

// DropCollisions removes nodes that share a name with a sibling from the
// tree rooted at root, which is materialized at rootPath/root.Name. Among
// siblings with the same name the lowest id keeps it. Run it on the whole
// fetched tree before diffing so collisions with unchanged entries are
// found too.
func DropCollisions(root *models.Directory, rootPath string) []*InvalidNameError {
	var dropped []*InvalidNameError
	dropCollisions(root, tree.ChildPath(rootPath, root.Name), &dropped)
	return dropped
}

func dropCollisions(dir *models.Directory, path string, dropped *[]*InvalidNameError) {
	owners := make(map[string]uint64, len(dir.Files))
	for _, f := range dir.Files {
		b := f.Base()
		if id, ok := owners[b.Name]; !ok || b.ID < id {
			owners[b.Name] = b.ID
		}
	}
	kept := make([]models.File, 0, len(owners))
	for _, f := range dir.Files {
		b := f.Base()
		if owner := owners[b.Name]; owner != b.ID {
			*dropped = append(*dropped, &InvalidNameError{
				Parent:   path,
				ID:       b.ID,
				Name:     b.Name,
				Collides: true,
				OwnerID:  owner,
			})
			continue
		}
		kept = append(kept, f)
		if d, ok := f.(*models.Directory); ok {
			dropCollisions(d, tree.ChildPath(path, d.Name), dropped)
		}
	}
	dir.Files = kept
}

// CheckName rejects names that would escape or alias their parent directory.
func CheckName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// planner is the read-only context of a planning pass.
type planner struct {
	filter ignore.Filter
}

// accumulator collects the output of a planning pass.
type accumulator struct {
	plan Plan
}

// Build plans diffRoot, which is materialized at rootPath/diffRoot.Name.
// A nil diffRoot yields an empty plan. A nil filter ignores nothing.
func Build(diffRoot *models.Directory, rootPath string, filter ignore.Filter) *Plan {
	if filter == nil {
		filter = ignore.Nop{}
	}
	acc := &accumulator{}
	if diffRoot != nil {
		p := planner{filter: filter}
		p.file(acc, diffRoot, rootPath)
	}
	return &acc.plan
}

func (p planner) file(acc *accumulator, f models.File, parent string) {
	base := f.Base()
	if !CheckName(base.Name) {
		acc.plan.Skipped = append(acc.plan.Skipped, &InvalidNameError{
			Parent: parent,
			ID:     base.ID,
			Name:   base.Name,
		})
		return
	}

	path := tree.ChildPath(parent, base.Name)
	switch f := f.(type) {
	case *models.Directory:
		if p.filter.IsIgnored(path, true) {
			acc.plan.Ignored++
			metrics.RecordIgnored(true)
			return
		}
		acc.plan.Directories = append(acc.plan.Directories, taskFor(path, base))
		for _, child := range f.Files {
			p.file(acc, child, path)
		}
	case *models.RegularFile:
		if p.filter.IsIgnored(path, false) {
			acc.plan.Ignored++
			metrics.RecordIgnored(false)
			return
		}
		acc.plan.Files = append(acc.plan.Files, taskFor(path, base))
	}
}

func taskFor(path string, base *models.FileBase) Task {
	return Task{
		Path:    path,
		ID:      base.ID,
		Size:    base.Size,
		ModTime: base.Time.Modified(),
	}
}
