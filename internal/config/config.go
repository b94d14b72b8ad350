// Package config loads configuration from a YAML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kkysen/CanvasFileSync/internal/source"
)

// FileName is the config file looked up in the mirror directory.
const FileName = "canvassync.yaml"

// Snapshot backends.
const (
	SnapshotFile     = "file"
	SnapshotPostgres = "postgres"
)

// Config holds all client configuration.
type Config struct {
	// Canvas
	Domain      string `yaml:"domain"`
	AccessToken string `yaml:"access_token"`

	// Mirror
	Dir         string        `yaml:"dir"`
	Concurrency int           `yaml:"concurrency"`
	Interval    time.Duration `yaml:"interval"`
	SkipGit     bool          `yaml:"skip_git"`
	Ignore      []string      `yaml:"ignore"`

	// Snapshot ("file" or "postgres")
	SnapshotBackend string `yaml:"snapshot_backend"`
	DatabaseURL     string `yaml:"database_url"`

	// File contents
	Source source.Config `yaml:"source"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Watch mode
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultDir returns <Documents>/CanvasFileSync.
func DefaultDir() string {
	docs := xdg.UserDirs.Documents
	if docs == "" {
		home, _ := os.UserHomeDir()
		docs = filepath.Join(home, "Documents")
	}
	return filepath.Join(docs, "CanvasFileSync")
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Dir:             DefaultDir(),
		Concurrency:     8,
		Interval:        30 * time.Minute,
		SnapshotBackend: SnapshotFile,
		Source:          source.Config{Backend: source.BackendCanvas},
		LogLevel:        "info",
		LogFormat:       "console",
		MetricsAddr:     ":9090",
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded into the environment first. path names a YAML file that must
// exist; when empty, <dir>/canvassync.yaml is read if present, with dir
// taken from CANVAS_DIR or the default. Environment variables override
// the file; unparsable values are errors. The result is not validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.Dir = envOr("CANVAS_DIR", cfg.Dir)

	required := path != ""
	if !required {
		path = filepath.Join(cfg.Dir, FileName)
	}
	if err := cfg.loadFile(path, required); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Dir = expandHome(cfg.Dir)
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Domain = envOr("CANVAS_DOMAIN", c.Domain)
	c.AccessToken = envOr("CANVAS_ACCESS_TOKEN", c.AccessToken)
	c.Dir = envOr("CANVAS_DIR", c.Dir)
	c.Concurrency = envInt("SYNC_CONCURRENCY", c.Concurrency, &errs)
	c.Interval = envDuration("SYNC_INTERVAL", c.Interval, &errs)
	c.SkipGit = envBool("SKIP_GIT", c.SkipGit, &errs)
	if v := os.Getenv("SYNC_IGNORE"); v != "" {
		c.Ignore = append(c.Ignore, strings.Split(v, ",")...)
	}

	c.SnapshotBackend = envOr("SNAPSHOT_BACKEND", c.SnapshotBackend)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)

	c.Source.Backend = envOr("SOURCE_BACKEND", c.Source.Backend)
	c.Source.Local.RootPath = envOr("SOURCE_LOCAL_PATH", c.Source.Local.RootPath)
	c.Source.S3.Endpoint = envOr("S3_ENDPOINT", c.Source.S3.Endpoint)
	c.Source.S3.Bucket = envOr("S3_BUCKET", c.Source.S3.Bucket)
	c.Source.S3.Prefix = envOr("S3_PREFIX", c.Source.S3.Prefix)
	c.Source.S3.AccessKey = envOr("S3_ACCESS_KEY", c.Source.S3.AccessKey)
	c.Source.S3.SecretKey = envOr("S3_SECRET_KEY", c.Source.S3.SecretKey)
	c.Source.S3.Region = envOr("S3_REGION", c.Source.S3.Region)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envParse parses the variable key with parse. When the variable is unset
// it returns fallback; when it does not parse it records an error and
// returns fallback.
func envParse[T any](key string, fallback T, parse func(string) (T, error), errs *[]error) T {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := parse(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q: %w", key, v, err))
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool, errs *[]error) bool {
	return envParse(key, fallback, strconv.ParseBool, errs)
}

func envInt(key string, fallback int, errs *[]error) int {
	return envParse(key, fallback, strconv.Atoi, errs)
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	return envParse(key, fallback, time.ParseDuration, errs)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
