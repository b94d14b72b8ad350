// Package snapshot persists the tree of what has been mirrored.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kkysen/CanvasFileSync/pkg/models"
)

// FileName is the snapshot file kept in the mirror root.
const FileName = "file_tree.json"

// Store loads and saves the persisted snapshot.
type Store interface {
	// Load returns the persisted tree, or an empty tree if none exists.
	Load(ctx context.Context) (*models.FileTree, error)
	// Save replaces the persisted tree.
	Save(ctx context.Context, t *models.FileTree) error
}

// Decode parses and validates a snapshot document.
func Decode(data []byte) (*models.FileTree, error) {
	var t models.FileTree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if t.Root == nil {
		return nil, fmt.Errorf("decode snapshot: missing root")
	}
	if err := models.Validate(t.Root); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &t, nil
}

// Encode renders a snapshot document.
func Encode(t *models.FileTree) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// FileStore keeps the snapshot as one JSON file.
type FileStore struct {
	path string
}

// NewFileStore stores the snapshot at <root>/file_tree.json.
func NewFileStore(root string) *FileStore {
	return &FileStore{path: filepath.Join(root, FileName)}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (*models.FileTree, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewEmptyTree("", models.IdName{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data)
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, t *models.FileTree) error {
	data, err := Encode(t)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".file_tree-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	// persist the rename; not every platform can open a directory
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
