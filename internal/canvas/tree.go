package canvas

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/pkg/models"
	"github.com/kkysen/CanvasFileSync/pkg/tree"
)

// ModulesDirName names the directory holding a course's modules. Its id is
// 0, which no Canvas folder has, so it never collides with the course's
// root folder.
const ModulesDirName = "modules"

// FetchTree builds the user's file tree:
//
//	<user>/<course>/<course files folder tree>
//	<user>/<course>/modules/<module>/<file>
//
// Directory times are raised to their newest descendant's time so that
// unchanged directories can be skipped when diffing. Module membership
// changes without any file time changing, so module directories carry the
// fetch time and are always compared file by file.
func (c *Client) FetchTree(ctx context.Context) (*models.FileTree, error) {
	start := time.Now()
	fetchedAt := c.now()
	log := logging.WithContext(ctx)

	user, err := c.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	var created time.Time
	if user.CreatedAt != nil {
		created = *user.CreatedAt
	}
	root := models.NewDirectory(models.IdName{ID: user.ID, Name: user.Name}, created)

	courses, err := c.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch courses: %w", err)
	}
	for _, course := range courses {
		if course.Name == nil || *course.Name == "" {
			log.Debug("skipping course without name", logging.Uint64("course", course.ID))
			continue
		}
		dir, err := c.courseTree(ctx, course, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("course %d (%s): %w", course.ID, *course.Name, err)
		}
		root.Files = append(root.Files, dir)
	}

	tree.PropagateTimes(root)
	if err := models.Validate(root); err != nil {
		return nil, fmt.Errorf("fetched tree: %w", err)
	}

	counts := tree.Count(root)
	log.Info("fetched canvas tree",
		logging.String("domain", c.domain),
		logging.Int("courses", len(root.Files)),
		logging.Int("directories", counts.Directories),
		logging.Int("files", counts.Files),
		logging.Duration("took", time.Since(start)))

	return &models.FileTree{Domain: c.domain, Root: root}, nil
}

func (c *Client) courseTree(ctx context.Context, course Course, fetchedAt time.Time) (*models.Directory, error) {
	log := logging.WithContext(ctx).With(logging.Uint64("course", course.ID))

	var created time.Time
	switch {
	case course.CreatedAt != nil:
		created = *course.CreatedAt
	case course.StartAt != nil:
		created = *course.StartAt
	}
	dir := models.NewDirectory(models.IdName{ID: course.ID, Name: *course.Name}, created)

	folders, err := c.Folders(ctx, course.ID)
	if err != nil && !IsAccessDenied(err) {
		return nil, fmt.Errorf("fetch folders: %w", err)
	}
	files, err := c.Files(ctx, course.ID)
	if err != nil && !IsAccessDenied(err) {
		return nil, fmt.Errorf("fetch files: %w", err)
	}
	if len(folders) == 0 {
		log.Debug("course files not accessible")
	}
	if folder := BuildFolderTree(folders, files); folder != nil {
		dir.Files = append(dir.Files, folder)
	}

	modules, err := c.Modules(ctx, course.ID)
	if err != nil && !IsAccessDenied(err) {
		return nil, fmt.Errorf("fetch modules: %w", err)
	}
	if len(modules) > 0 {
		byID := make(map[uint64]File, len(files))
		for _, f := range files {
			byID[f.ID] = f
		}
		lookup := func(id uint64) (File, bool) {
			if f, ok := byID[id]; ok {
				return f, true
			}
			f, err := c.File(ctx, id)
			if err != nil {
				log.Warn("module file not accessible", logging.Uint64("file", id), logging.Err(err))
				return File{}, false
			}
			byID[id] = *f
			return *f, true
		}
		dir.Files = append(dir.Files, BuildModulesTree(modules, fetchedAt, lookup))
	}

	return dir, nil
}

// BuildFolderTree nests folders under their parents and attaches files to
// their folders. It returns the root folder (the one without a parent), or
// nil if there is none. Folders whose parent is missing are dropped.
func BuildFolderTree(folders []Folder, files []File) *models.Directory {
	dirs := make(map[uint64]*models.Directory, len(folders))
	for _, f := range folders {
		d := models.NewDirectory(models.IdName{ID: f.ID, Name: f.Name}, f.CreatedAt)
		d.Time.UpdatedAt = f.UpdatedAt
		dirs[f.ID] = d
	}

	var root *models.Directory
	for _, f := range folders {
		d := dirs[f.ID]
		if f.ParentFolderID == nil {
			if root == nil {
				root = d
			}
			continue
		}
		if parent, ok := dirs[*f.ParentFolderID]; ok {
			parent.Files = append(parent.Files, d)
		}
	}

	for _, f := range files {
		if parent, ok := dirs[f.FolderID]; ok {
			parent.Files = append(parent.Files, regularFile(f))
		}
	}
	return root
}

// BuildModulesTree builds the modules directory. File items are resolved
// with lookup; items it cannot resolve are left out, as are repeated files
// within one module. The modules directory and every module directory are
// stamped with fetchedAt.
func BuildModulesTree(modules []Module, fetchedAt time.Time, lookup func(id uint64) (File, bool)) *models.Directory {
	sorted := append([]Module(nil), modules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	dir := models.NewDirectory(models.IdName{ID: 0, Name: ModulesDirName}, fetchedAt)
	for _, m := range sorted {
		md := models.NewDirectory(models.IdName{ID: m.ID, Name: m.Name}, fetchedAt)
		seen := make(map[uint64]bool)
		for _, item := range m.Items {
			if item.Type != ItemTypeFile || seen[item.ContentID] {
				continue
			}
			f, ok := lookup(item.ContentID)
			if !ok {
				continue
			}
			seen[item.ContentID] = true
			md.Files = append(md.Files, regularFile(f))
		}
		dir.Files = append(dir.Files, md)
	}
	return dir
}

func regularFile(f File) *models.RegularFile {
	name := f.DisplayName
	if name == "" {
		name = f.Filename
	}
	size := f.Size
	return &models.RegularFile{FileBase: models.FileBase{
		IdName: models.IdName{ID: f.ID, Name: name},
		Time: models.FileTime{
			CreatedAt:  f.CreatedAt,
			UpdatedAt:  f.UpdatedAt,
			ModifiedAt: f.ModifiedAt,
		},
		Size: &size,
	}}
}
