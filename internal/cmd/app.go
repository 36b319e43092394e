package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/core/engine"
	"github.com/namelens/chatgate/internal/core/store"
	"github.com/namelens/chatgate/internal/observability"

	"github.com/spf13/viper"
)

// errConfig marks failures that map to the config-invalid exit code.
var errConfig = errors.New("invalid configuration")

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// componentLogger builds the zap logger handed to the request path. It
// writes warnings (debug with --verbose) to stderr and, when configured,
// everything to the rotating log file.
func componentLogger(cfg *config.Config) (*zap.Logger, func() error) {
	file := cfg.Logging.File
	return observability.CLIComponentLogger(verbose, observability.FileSink{
		Path:       file.Path,
		MaxSizeMB:  file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAgeDays: file.MaxAgeDays,
		Compress:   file.Compress,
	})
}

// chatSession owns a Service plus the resources it was built from. With
// persistence on, every admission is committed to the shared backend.
type chatSession struct {
	Service *ailink.Service
	Bucket  string

	budgets store.BudgetStore
	logger  *zap.Logger
	closers []func() error
}

func openChatSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, extra ...ailink.Option) (*chatSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := ailink.NewRegistry(cfg.AILink).Resolve("")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	s := &chatSession{Bucket: provider.ProviderID, logger: logger}

	opts := []ailink.Option{ailink.WithLogger(logger)}
	if key := strings.TrimSpace(apiKey); key != "" {
		opts = append(opts, ailink.WithAPIKey(key))
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("credential store unavailable", zap.Error(err))
		db = nil
	} else {
		s.closers = append(s.closers, db.Close)
		opts = append(opts, ailink.WithCredentialStore(db))
	}

	if cfg.AILink.Admission.Persist {
		if shared := s.sharedBudget(ctx, cfg, db); shared != nil {
			opts = append(opts, ailink.WithBudget(shared))
		}
	}

	svc, err := ailink.NewService(cfg.AILink, append(opts, extra...)...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Service = svc
	return s, nil
}

// sharedBudget opens the configured budget backend and admits through it.
// When the backend cannot be opened the session keeps an in-memory bucket.
func (s *chatSession) sharedBudget(ctx context.Context, cfg *config.Config, db *store.Store) *engine.SharedBucket {
	budgets, closeFn, err := openBudgetStore(ctx, cfg, db)
	if err != nil {
		s.logger.Warn("budget persistence unavailable", zap.Error(err))
		return nil
	}
	if closeFn != nil {
		s.closers = append(s.closers, closeFn)
	}
	s.budgets = budgets

	admission := cfg.AILink.Admission
	s.logger.Debug("admitting through shared budget",
		zap.String("bucket", s.Bucket),
		zap.String("backend", admission.Backend))
	return &engine.SharedBucket{
		Backend:         budgets,
		Bucket:          s.Bucket,
		Capacity:        admission.Capacity,
		RefillPerSecond: admission.RefillPerSecond,
	}
}

// Close releases resources in reverse order of acquisition.
func (s *chatSession) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
