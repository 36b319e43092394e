package cmd

import (
	"fmt"
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string
	apiKey    string

	// traceCleanup closes the --trace file when Execute returns.
	traceCleanup func()

	// Version info set by main package
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Rate-limited chat completion gateway",
	Long: `chatgate sends chat completion requests to an OpenAI-compatible API.

Every request passes a local token-bucket admission check, resolves a
credential (flag, stored, config, environment) and retries transient upstream
failures with jittered backoff. Without a credential it answers with a local
demo reply.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	defer func() {
		if traceCleanup != nil {
			traceCleanup()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	// Keep telemetry quiet for CLI commands; serve installs the real system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/chatgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace upstream requests/responses to an NDJSON file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for this invocation (overrides stored, config and env keys)")
	rootCmd.PersistentFlags().String("log-file", "", "also write request-path logs as rotated JSON to this file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.file.path", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := observability.InitCLILogger(config.AppName, verbose); err != nil {
		Exit(fmt.Errorf("%w: %w", errConfig, err))
	}

	if traceFile != "" {
		cleanup, err := driver.EnableTracing(traceFile)
		if err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			observability.CLILogger.Debug("Upstream tracing enabled", zap.String("file", traceFile))
			traceCleanup = cleanup
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(config.AppName); dir != "" {
			viper.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}
