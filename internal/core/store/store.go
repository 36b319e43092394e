// Package store persists credentials and admission budgets in libsql (local
// file, memory or a remote Turso database), with an optional Redis backend
// for budgets shared between processes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/namelens/chatgate/internal/config"
)

const (
	driverLibsql  = "libsql"
	busyTimeoutMs = 5000
)

// Store wraps the libsql connection holding credentials and admission state.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open connects to the configured database. Local files are created with
// owner-only permissions and tuned so concurrent CLI invocations wait on the
// write lock instead of failing.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	if t.local() {
		if err := prepareDir(t.file); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driverLibsql, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	if t.local() {
		if err := tuneLocal(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := os.Chmod(t.file, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = db.Close()
			return nil, fmt.Errorf("restrict store permissions: %w", err)
		}
	}

	return &Store{DB: db, driver: driver}, nil
}

// tuneLocal uses one connection with WAL and a busy timeout.
func tuneLocal(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)

	// Both pragmas return a row.
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)).Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// CheckHealth pings the database. It satisfies the server health checker.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	return s.DB.PingContext(ctx)
}
