package config

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kkysen/CanvasFileSync/internal/source"
)

func init() {
	// report errors under the names used in canvassync.yaml
	validation.ErrorTag = "yaml"
}

var domainPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?(:[0-9]+)?$`)

// Validate checks the settings needed for a sync.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Domain,
			validation.Required.Error("is required (CANVAS_DOMAIN or login)"),
			validation.Match(domainPattern).Error("must be a host name such as canvas.example.edu"),
		),
		validation.Field(&c.AccessToken, validation.Required.Error("is required (CANVAS_ACCESS_TOKEN or login)")),
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.SnapshotBackend, validation.In(SnapshotFile, SnapshotPostgres)),
		validation.Field(&c.DatabaseURL,
			validation.When(c.SnapshotBackend == SnapshotPostgres, validation.Required)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "console")),
	)
	if err != nil {
		return err
	}
	if err := validateSource(&c.Source); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	return nil
}

func validateSource(s *source.Config) error {
	if err := validation.Validate(s.Backend,
		validation.In(source.BackendCanvas, source.BackendLocal, source.BackendS3)); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	switch s.Backend {
	case source.BackendLocal:
		return validation.ValidateStruct(&s.Local,
			validation.Field(&s.Local.RootPath, validation.Required))
	case source.BackendS3:
		return validation.ValidateStruct(&s.S3,
			validation.Field(&s.S3.Bucket, validation.Required))
	}
	return nil
}
