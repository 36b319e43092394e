package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in order and recorded in schema_migrations. Never
// edit an applied entry; append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "credentials",
		stmts: []string{`CREATE TABLE IF NOT EXISTS credentials (
			provider TEXT PRIMARY KEY,
			api_key TEXT NOT NULL,
			label TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`},
	},
	{
		version: 2,
		name:    "admission_state",
		stmts: []string{`CREATE TABLE IF NOT EXISTS admission_state (
			bucket TEXT PRIMARY KEY,
			capacity REAL NOT NULL,
			refill_per_second REAL NOT NULL,
			tokens REAL NOT NULL,
			last_refill_ms INTEGER NOT NULL
		)`},
	},
}

// Migrate applies pending migrations. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("store migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh store.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}
