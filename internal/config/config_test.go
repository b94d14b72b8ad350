package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkysen/CanvasFileSync/internal/source"
)

var envKeys = []string{
	"CANVAS_DOMAIN", "CANVAS_ACCESS_TOKEN", "CANVAS_DIR", "SYNC_CONCURRENCY",
	"SYNC_INTERVAL", "SKIP_GIT", "SYNC_IGNORE", "SNAPSHOT_BACKEND", "DATABASE_URL",
	"SOURCE_BACKEND", "SOURCE_LOCAL_PATH", "S3_ENDPOINT", "S3_BUCKET", "S3_PREFIX",
	"S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_REGION", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Domain = "canvas.example.edu"
	cfg.AccessToken = "token"
	cfg.Dir = "/tmp/mirror"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("CANVAS_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Interval)
	assert.Equal(t, SnapshotFile, cfg.SnapshotBackend)
	assert.Equal(t, source.BackendCanvas, cfg.Source.Backend)
	assert.False(t, cfg.SkipGit)
}

func TestLoadFileFromMirrorDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("CANVAS_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
domain: canvas.example.edu
access_token: from-file
concurrency: 4
interval: 45m
skip_git: true
ignore:
  - "*.mp4"
source:
  backend: s3
  s3:
    bucket: canvas-mirror
    prefix: files/
`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "canvas.example.edu", cfg.Domain)
	assert.Equal(t, "from-file", cfg.AccessToken)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 45*time.Minute, cfg.Interval)
	assert.True(t, cfg.SkipGit)
	assert.Equal(t, []string{"*.mp4"}, cfg.Ignore)
	assert.Equal(t, source.BackendS3, cfg.Source.Backend)
	assert.Equal(t, "canvas-mirror", cfg.Source.S3.Bucket)
	assert.Equal(t, "files/", cfg.Source.S3.Prefix)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("domain: file.example.edu\nconcurrency: 4\n"), 0o644))

	t.Setenv("CANVAS_DOMAIN", "env.example.edu")
	t.Setenv("SYNC_CONCURRENCY", "16")
	t.Setenv("SYNC_INTERVAL", "2h")
	t.Setenv("SKIP_GIT", "true")
	t.Setenv("SYNC_IGNORE", "*.zip,drafts/")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.example.edu", cfg.Domain)
	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, 2*time.Hour, cfg.Interval)
	assert.True(t, cfg.SkipGit)
	assert.Equal(t, []string{"*.zip", "drafts/"}, cfg.Ignore)
}

func TestLoadRejectsUnparsableEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SYNC_CONCURRENCY", "abc"},
		{"SYNC_INTERVAL", "soon"},
		{"SKIP_GIT", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CANVAS_DIR", t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: [1, 2"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Canvas"), expandHome("~/Canvas"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing domain", func(c *Config) { c.Domain = "" }, "domain"},
		{"domain with scheme", func(c *Config) { c.Domain = "https://canvas.example.edu" }, "domain"},
		{"domain with port", func(c *Config) { c.Domain = "localhost:8443" }, ""},
		{"missing token", func(c *Config) { c.AccessToken = "" }, "access_token"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"short interval", func(c *Config) { c.Interval = time.Second }, "interval"},
		{"unknown snapshot backend", func(c *Config) { c.SnapshotBackend = "redis" }, "snapshot_backend"},
		{"postgres without url", func(c *Config) { c.SnapshotBackend = SnapshotPostgres }, "database_url"},
		{"postgres with url", func(c *Config) {
			c.SnapshotBackend = SnapshotPostgres
			c.DatabaseURL = "postgres://localhost/canvas"
		}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown source", func(c *Config) { c.Source.Backend = "ftp" }, "backend"},
		{"local source without path", func(c *Config) { c.Source.Backend = source.BackendLocal }, "root_path"},
		{"s3 source without bucket", func(c *Config) { c.Source.Backend = source.BackendS3 }, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q does not mention %q", err, tt.wantErr)
		})
	}
}
