package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/core/store"
	"github.com/namelens/chatgate/internal/observability"
)

const doctorChecks = 6

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check the config, store, budget backend and credential resolution, and suggest fixes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := observability.CLILogger
		log.Info("=== chatgate doctor ===")
		log.Info("")

		ok := true
		step := func(n int, label string) string { return fmt.Sprintf("[%d/%d] %s...", n, doctorChecks, label) }

		version := crucible.GetVersion()
		log.Info(fmt.Sprintf("%s ✅ %s, gofulmen %s", step(1, "Checking runtime"), runtime.Version(), version.Gofulmen),
			zap.String("go_version", runtime.Version()),
			zap.String("crucible_version", version.Crucible))

		configPath := config.DefaultConfigPath()
		switch {
		case viper.ConfigFileUsed() != "":
			log.Info(fmt.Sprintf("%s ✅ %s", step(2, "Checking config file"), viper.ConfigFileUsed()))
		case fileExists(configPath):
			log.Info(fmt.Sprintf("%s ✅ %s", step(2, "Checking config file"), configPath))
		default:
			log.Info(fmt.Sprintf("%s ⚠️  none (defaults and env only; run 'chatgate doctor init')", step(2, "Checking config file")))
		}

		cfg, err := loadConfig()
		if err != nil {
			log.Error(fmt.Sprintf("%s ❌ %v", step(3, "Validating config"), err))
			return err
		}
		log.Info(fmt.Sprintf("%s ✅ provider %q, model %q", step(3, "Validating config"), cfg.AILink.DefaultProvider, cfg.AILink.Model))

		db, err := openStore(ctx, cfg)
		if err != nil {
			ok = false
			log.Warn(fmt.Sprintf("%s ⚠️  cannot open store", step(4, "Checking store")), zap.Error(err))
		} else {
			defer db.Close() // nolint:errcheck // best-effort cleanup
			log.Info(fmt.Sprintf("%s ✅ %s", step(4, "Checking store"), describeStore(cfg)))
		}

		if !cfg.AILink.Admission.Persist {
			log.Info(fmt.Sprintf("%s ✅ in-memory (persist disabled)", step(5, "Checking budget backend")))
		} else if budgets, closeFn, err := openBudgetStore(ctx, cfg, db); err != nil {
			ok = false
			log.Warn(fmt.Sprintf("%s ⚠️  %s unavailable", step(5, "Checking budget backend"), cfg.AILink.Admission.Backend), zap.Error(err))
		} else {
			if closeFn != nil {
				defer closeFn() // nolint:errcheck // best-effort cleanup
			}
			if checker, isChecker := budgets.(interface{ CheckHealth(context.Context) error }); isChecker {
				if err := checker.CheckHealth(ctx); err != nil {
					ok = false
					log.Warn(fmt.Sprintf("%s ⚠️  unhealthy", step(5, "Checking budget backend")), zap.Error(err))
				} else {
					log.Info(fmt.Sprintf("%s ✅ %s", step(5, "Checking budget backend"), backendName(budgets)))
				}
			}
		}

		logger, closeLog := componentLogger(cfg)
		defer func() { _ = closeLog() }()
		if session, err := openChatSession(ctx, cfg, logger); err != nil {
			ok = false
			log.Warn(fmt.Sprintf("%s ⚠️  cannot build service", step(6, "Resolving credential")), zap.Error(err))
		} else {
			defer func() { _ = session.Close() }()
			source, _ := session.Service.CredentialSource(ctx)
			if source == "" {
				log.Warn(fmt.Sprintf("%s ⚠️  none found; replies will be demo text (run 'chatgate credentials set')", step(6, "Resolving credential")))
			} else {
				log.Info(fmt.Sprintf("%s ✅ from %s", step(6, "Resolving credential"), source))
			}
		}

		log.Info("")
		if ok {
			log.Info("✅ All checks passed.")
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		return nil
	},
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("%w: config path not resolved", errConfig)
		}
		if fileExists(configPath) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		data, err := starterConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return err
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite an existing config file")
}

// starterConfig renders the YAML written by doctor init. API keys are left
// out so environment variables keep working.
func starterConfig() ([]byte, error) {
	doc := map[string]any{
		"ailink": map[string]any{
			"base_url": "https://api.openai.com/v1",
			"model":    "gpt-4o-mini",
			"admission": map[string]any{
				"capacity":          10,
				"refill_per_second": 1,
				"persist":           true,
				"backend":           "store",
			},
			"retry": map[string]any{
				"max_retries": 4,
				"base_delay":  "300ms",
				"max_delay":   "7s",
			},
		},
		"server": map[string]any{
			"host": "localhost",
			"port": 8080,
		},
		"logging": map[string]any{
			"level": "info",
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	header := "# chatgate config - created by 'chatgate doctor init'\n# Store keys with 'chatgate credentials set' or export CHATGATE_API_KEY.\n"
	return append([]byte(header), data...), nil
}

func describeStore(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Store.URL) != "" {
		return cfg.Store.URL + " (remote)"
	}
	path, _ := filepath.Abs(cfg.Store.Path)
	if info, err := os.Stat(path); err == nil {
		return fmt.Sprintf("%s (%s)", path, formatFileSize(info.Size()))
	}
	return path
}

func backendName(b store.BudgetStore) string {
	if _, isRedis := b.(*store.RedisBudgets); isRedis {
		return "redis"
	}
	return "store"
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
