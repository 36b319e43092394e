package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/core/store"
)

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openBudgetStore returns the admission backend selected by
// ailink.admission.backend. The close func is nil when the caller already
// owns the backend (the libsql store).
func openBudgetStore(ctx context.Context, cfg *config.Config, db *store.Store) (store.BudgetStore, func() error, error) {
	admission := cfg.AILink.Admission
	switch strings.ToLower(strings.TrimSpace(admission.Backend)) {
	case "redis":
		budgets, err := store.OpenRedisBudgets(ctx, admission.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return budgets, budgets.Close, nil
	default:
		if db == nil {
			return nil, nil, errors.New("store backend selected but the store is not open")
		}
		return db, nil, nil
	}
}
