package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kkysen/CanvasFileSync/internal/logging"
	"github.com/kkysen/CanvasFileSync/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	domain     TEXT PRIMARY KEY,
	tree       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps one snapshot per Canvas domain in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	domain string
}

// NewPostgresStore connects to databaseURL and creates the snapshots table
// if needed.
func NewPostgresStore(ctx context.Context, databaseURL, domain string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db, domain: domain}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the snapshots table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	logging.Debug("snapshot schema ready")
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*models.FileTree, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT tree FROM snapshots WHERE domain = $1`, s.domain).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewEmptyTree(s.domain, models.IdName{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return Decode(data)
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, t *models.FileTree) error {
	data, err := Encode(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (domain, tree, updated_at) VALUES ($1, $2::jsonb, NOW())
		 ON CONFLICT (domain) DO UPDATE SET tree = EXCLUDED.tree, updated_at = NOW()`,
		s.domain, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
