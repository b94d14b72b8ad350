// Package local serves file contents from a directory of files named by id.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds local directory source settings.
type Config struct {
	RootPath string `yaml:"root_path"`
}

// Source reads <root>/<id>.
type Source struct {
	rootPath string
}

// New creates a local source. The root must be an existing directory.
func New(cfg Config) (*Source, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &Source{rootPath: cfg.RootPath}, nil
}

// Path returns where the contents of id are read from.
func (s *Source) Path(id uint64) string {
	return filepath.Join(s.rootPath, strconv.FormatUint(id, 10))
}

// Open implements source.Source. A missing file yields an error
// wrapping fs.ErrNotExist.
func (s *Source) Open(_ context.Context, id uint64) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path(id))
	if err != nil {
		return nil, 0, fmt.Errorf("open %d: %w", id, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %d: %w", id, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %d: is a directory", id)
	}

	return f, info.Size(), nil
}
