package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are shown as (set) or (not set).",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== chatgate Environment Information ===")
		log.Info("")
		log.Info("Application:")
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")
		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")
		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info(fmt.Sprintf("  Platform:   %s/%s", runtime.GOOS, runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  JWT Auth:       " + setStatus(cfg.Server.Auth.JWTSecret))
		log.Info("  Admin Token:    " + setStatus(cfg.Server.AdminToken))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		if cfg.Logging.File.Path != "" {
			log.Info("  Log File:       " + cfg.Logging.File.Path)
		}
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  Store URL:      " + cfg.Store.URL)
		} else {
			log.Info("  Store Path:     " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("")

		admission := cfg.AILink.Admission
		log.Info("Upstream:")
		log.Info("  Base URL:         " + cfg.AILink.BaseURL)
		log.Info("  Model:            " + cfg.AILink.Model)
		log.Info("  Default Provider: " + orUnset(cfg.AILink.DefaultProvider))
		log.Info("  Default Timeout:  " + cfg.AILink.DefaultTimeout.String())
		if r := cfg.AILink.Retry; r != nil {
			log.Info(fmt.Sprintf("  Retry:            %d retries, %s base, %s cap", r.MaxRetries, r.BaseDelay, r.MaxDelay))
		} else {
			log.Info("  Retry:            driver default")
		}
		log.Info(fmt.Sprintf("  Admission:        capacity %g, refill %g/s, persist %t (%s)", admission.Capacity, admission.RefillPerSecond, admission.Persist, admission.Backend))
		for id, provider := range cfg.AILink.Providers {
			keys := 0
			for _, cred := range provider.Credentials {
				if strings.TrimSpace(cred.APIKey) != "" {
					keys++
				}
			}
			log.Info(fmt.Sprintf("  %s: enabled=%t base_url=%s keys=%d", id, provider.Enabled, provider.BaseURL, keys))
		}
		log.Info("")
		log.Info("=== End Environment Information ===")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

func setStatus(value string) string {
	if strings.TrimSpace(value) != "" {
		return "(set)"
	}
	return "(not set)"
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}
