//go:build cgo

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/core"
	"github.com/namelens/chatgate/internal/core/engine"
)

func openMigrated(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: "file:" + t.TempDir() + "/chatgate.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	key, err := store.GetCredential(ctx, "openai")
	require.NoError(t, err)
	require.Empty(t, key)

	require.NoError(t, store.SetCredential(ctx, "openai", "work", "sk-one", now))
	require.NoError(t, store.SetCredential(ctx, "openai", "work", "sk-two", now.Add(time.Hour)))

	key, err = store.GetCredential(ctx, "openai")
	require.NoError(t, err)
	require.Equal(t, "sk-two", key)

	entries, err := store.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "work", entries[0].Label)
	require.Equal(t, now.Add(time.Hour), entries[0].UpdatedAt)

	deleted, err := store.DeleteCredential(ctx, "openai")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteCredential(ctx, "openai")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestSetCredentialRequiresKey(t *testing.T) {
	store := openMigrated(t)
	require.Error(t, store.SetCredential(context.Background(), "openai", "", "  ", time.Now()))
}

func TestBudgetSwapRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)

	missing, err := store.GetBudget(ctx, "default")
	require.NoError(t, err)
	require.Nil(t, missing)

	budget := core.RateBudget{
		Capacity:        5,
		RefillPerSecond: 0.5,
		Tokens:          2.25,
		LastRefill:      time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC),
	}
	swapped, err := store.SwapBudget(ctx, "default", nil, budget)
	require.NoError(t, err)
	require.True(t, swapped)

	swapped, err = store.SwapBudget(ctx, "default", nil, budget)
	require.NoError(t, err)
	require.False(t, swapped, "insert must not overwrite an existing row")

	loaded, err := store.GetBudget(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, budget, *loaded)

	stale := *loaded
	stale.Tokens = 4
	next := *loaded
	next.Tokens = 1.25
	swapped, err = store.SwapBudget(ctx, "default", &stale, next)
	require.NoError(t, err)
	require.False(t, swapped)

	swapped, err = store.SwapBudget(ctx, "default", loaded, next)
	require.NoError(t, err)
	require.True(t, swapped)

	reset, err := store.ResetBudget(ctx, "default")
	require.NoError(t, err)
	require.True(t, reset)
}

func TestSharedBudgetAcrossStoreHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	handles := make([]*Store, 4)
	for i := range handles {
		db, err := Open(ctx, config.StoreConfig{Path: path})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, db.Migrate(ctx))
		handles[i] = db
	}

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for _, db := range handles {
		wg.Add(1)
		go func(db *Store) {
			defer wg.Done()
			bucket := &engine.SharedBucket{Backend: db, Bucket: "openai", Capacity: 1, MaxSwaps: 64}
			_, ok, err := bucket.Admit(ctx, 1)
			require.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}(db)
	}
	wg.Wait()

	require.Equal(t, int32(1), admitted.Load())
	saved, err := handles[0].GetBudget(ctx, "openai")
	require.NoError(t, err)
	require.Equal(t, 0.0, saved.Tokens)
}

func TestOpenLocalStoreIsTunedAndPrivate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chatgate.db")

	store, err := Open(ctx, config.StoreConfig{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, strings.ToLower(journalMode), "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, busyTimeoutMs, busyTimeout)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, migrations[len(migrations)-1].version, version)

	var applied int
	require.NoError(t, store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	require.Equal(t, len(migrations), applied)
}
