package source

import (
	"context"
	"fmt"

	"github.com/kkysen/CanvasFileSync/internal/source/local"
	s3source "github.com/kkysen/CanvasFileSync/internal/source/s3"
)

// Backend names accepted by NewFromConfig.
const (
	BackendCanvas = "canvas"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Config selects and configures a byte source.
type Config struct {
	Backend string          `yaml:"backend"`
	Local   local.Config    `yaml:"local"`
	S3      s3source.Config `yaml:"s3"`
}

// NewFromConfig creates the configured source. The canvas backend (also the
// default) is remote itself, which must then be non-nil.
func NewFromConfig(ctx context.Context, cfg Config, remote Source) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Backend {
	case "", BackendCanvas:
		if remote == nil {
			return nil, fmt.Errorf("canvas source requested but no client given")
		}
		return Instrument(BackendCanvas, remote), nil
	case BackendLocal:
		src, err = local.New(cfg.Local)
	case BackendS3:
		src, err = s3source.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown source backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.Backend, err)
	}
	return Instrument(cfg.Backend, src), nil
}
