package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/config"
	errwrap "github.com/namelens/chatgate/internal/errors"
	"github.com/namelens/chatgate/internal/metrics"
	"github.com/namelens/chatgate/internal/observability"
	"github.com/namelens/chatgate/internal/server"
	"github.com/namelens/chatgate/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

type healthCheckerFunc func(ctx context.Context) error

func (f healthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Serve POST /v1/chat and GET /v1/budget over HTTP. All requests share one
admission budget.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply server settings)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := observability.InitServerLogger(observability.ServerLogOptions{
		Service:   config.AppName,
		Level:     cfg.Logging.Level,
		Namespace: config.AppName,
		Fields: map[string]any{
			"listen": fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		},
	}); err != nil {
		return err
	}
	log := observability.ServerLogger

	requestLogger, closeLog := observability.NewComponentLogger(observability.ComponentOptions{
		Level:   cfg.Logging.Level,
		Console: os.Stderr,
		JSON:    true,
		File: observability.FileSink{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	defer func() { _ = closeLog() }()

	checkers := map[string]handlers.HealthChecker{}
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, config.AppName); err != nil {
			log.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		checkers["telemetry"] = telemetryHealthChecker{}
	}

	recorder := metrics.NewChatRecorder()
	session, err := openChatSession(ctx, cfg, requestLogger,
		ailink.WithRecorder(recorder),
		ailink.WithAttemptObserver(recorder.ObserveAttempt),
	)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	if db, err := openStore(ctx, cfg); err == nil {
		defer db.Close() // nolint:errcheck // best-effort cleanup
		checkers["store"] = db
	} else {
		log.Warn("Store health check disabled", zap.Error(err))
	}
	if session.budgets != nil {
		checkers["budget_backend"] = healthCheckerFunc(func(ctx context.Context) error {
			_, err := session.budgets.GetBudget(ctx, session.Bucket)
			return err
		})
	}

	log.Info("Initializing server",
		zap.String("version", versionInfo.Version),
		zap.String("provider", session.Service.ProviderID()),
		zap.String("model", session.Service.Model()),
		zap.Float64("admission_capacity", cfg.AILink.Admission.Capacity),
		zap.Float64("admission_refill_per_second", cfg.AILink.Admission.RefillPerSecond),
		zap.Bool("auth", cfg.Server.Auth.JWTSecret != ""))

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Service:      session.Service,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		JWTSecret:    cfg.Server.Auth.JWTSecret,
		Issuer:       cfg.Server.Auth.Issuer,
		AdminToken:   cfg.Server.AdminToken,
		Version:      versionInfo.Version,
		Checkers:     checkers,
		Logger:       requestLogger,

		DisableHealth: !cfg.Health.Enabled,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: the server stops, then logs flush.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := log.Sync(); err != nil {
			log.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		log.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				return nil
			}
			log.Error("Failed to reload config file", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
			return err
		}
		log.Info("Config file re-read; restart to apply server and admission changes",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		log.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			log.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}
