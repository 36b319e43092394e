package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink"
)

func TestLoad(t *testing.T) {
	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir(AppName), AppName+".db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		// Verify request path defaults
		assert.Equal(t, "https://api.openai.com/v1", cfg.AILink.BaseURL)
		assert.Equal(t, 4, cfg.AILink.Retry.MaxRetries)
		assert.Equal(t, 300*time.Millisecond, cfg.AILink.Retry.BaseDelay)
		assert.Equal(t, 7*time.Second, cfg.AILink.Retry.MaxDelay)
		assert.Equal(t, 10.0, cfg.AILink.Admission.Capacity)
		assert.Equal(t, 1.0, cfg.AILink.Admission.RefillPerSecond)
		assert.Equal(t, 600*time.Millisecond, cfg.AILink.Demo.Delay)
		assert.Equal(t, "chatgate", cfg.AILink.Identification.Title)
		assert.Equal(t, "store", cfg.AILink.Admission.Backend)
		assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
		assert.Empty(t, cfg.Server.Auth.JWTSecret)
		assert.Equal(t, 50, cfg.Logging.File.MaxSizeMB)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"ailink": map[string]any{
				"admission": map[string]any{"capacity": 2},
			},
		}

		cfg, err := Load(viper.New(), overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 2.0, cfg.AILink.Admission.Capacity)

		// Siblings of an overridden key keep their defaults.
		assert.Equal(t, 1.0, cfg.AILink.Admission.RefillPerSecond)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("CHATGATE_PORT", "3000")
		t.Setenv("CHATGATE_LOG_LEVEL", "warn")
		t.Setenv("CHATGATE_METRICS_ENABLED", "false")
		t.Setenv("CHATGATE_AILINK_RETRY_BASE_DELAY", "50ms")
		t.Setenv("CHATGATE_AILINK_ADMISSION_REFILL_PER_SECOND", "2.5")

		cfg, err := Load(viper.New())
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 50*time.Millisecond, cfg.AILink.Retry.BaseDelay)
		assert.Equal(t, 2.5, cfg.AILink.Admission.RefillPerSecond)
	})

	t.Run("ZeroRetryIsKept", func(t *testing.T) {
		t.Setenv("CHATGATE_AILINK_RETRY_MAX_RETRIES", "0")
		t.Setenv("CHATGATE_AILINK_RETRY_BASE_DELAY", "0s")
		t.Setenv("CHATGATE_AILINK_RETRY_MAX_DELAY", "0s")

		cfg, err := Load(viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg.AILink.Retry)
		assert.Equal(t, ailink.RetryConfig{}, *cfg.AILink.Retry)
		require.NoError(t, Validate(cfg))
	})

	t.Run("InvalidFloatEnv", func(t *testing.T) {
		t.Setenv("CHATGATE_AILINK_ADMISSION_CAPACITY", "lots")

		_, err := Load(viper.New())
		require.Error(t, err)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
ailink:
  model: gpt-test
  providers:
    main:
      enabled: true
      ai_provider: openai
      selection_policy: round_robin
      credentials:
        - label: a
          enabled: true
          api_key: key-a
`), 0o600))

		v := viper.New()
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "gpt-test", cfg.AILink.Model)
		require.Contains(t, cfg.AILink.Providers, "main")
		assert.Equal(t, "round_robin", cfg.AILink.Providers["main"].SelectionPolicy)
		require.Len(t, cfg.AILink.Providers["main"].Credentials, 1)
		assert.Equal(t, "key-a", cfg.AILink.Providers["main"].Credentials[0].APIKey)
	})

	t.Run("DynamicProviderEnv", func(t *testing.T) {
		t.Setenv("CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_ENABLED", "true")
		t.Setenv("CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_AI_PROVIDER", "openai")
		t.Setenv("CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_CREDENTIALS_0_API_KEY", "env-key")
		t.Setenv("CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_CREDENTIALS_0_PRIORITY", "5")
		t.Setenv("CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_MODELS_DEFAULT", "gpt-env")

		cfg, err := Load(viper.New())
		require.NoError(t, err)

		provider, ok := cfg.AILink.Providers["openai-main"]
		require.True(t, ok)
		assert.True(t, provider.Enabled)
		assert.Equal(t, "gpt-env", provider.Models["default"])
		require.Len(t, provider.Credentials, 1)
		assert.Equal(t, "env-key", provider.Credentials[0].APIKey)
		assert.Equal(t, 5, provider.Credentials[0].Priority)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(viper.New())
		require.NoError(t, err)
		return cfg
	}

	t.Run("RejectsZeroCapacity", func(t *testing.T) {
		cfg := base()
		cfg.AILink.Admission.Capacity = 0
		require.ErrorContains(t, Validate(cfg), "capacity")
	})

	t.Run("RejectsInvertedDelays", func(t *testing.T) {
		cfg := base()
		cfg.AILink.Retry.BaseDelay = 10
		cfg.AILink.Retry.MaxDelay = 5
		require.ErrorContains(t, Validate(cfg), "max_delay")
	})

	t.Run("RejectsUnknownProvider", func(t *testing.T) {
		cfg := base()
		cfg.AILink.Providers = map[string]ailink.ProviderInstanceConfig{"x": {AIProvider: "xai"}}
		require.ErrorContains(t, Validate(cfg), "not supported")
	})

	t.Run("RedisBackendNeedsURL", func(t *testing.T) {
		cfg := base()
		cfg.AILink.Admission.Backend = "redis"
		require.ErrorContains(t, Validate(cfg), "redis_url")

		cfg.AILink.Admission.RedisURL = "redis://localhost:6379/0"
		require.NoError(t, Validate(cfg))
	})

	t.Run("RejectsUnknownBackend", func(t *testing.T) {
		cfg := base()
		cfg.AILink.Admission.Backend = "etcd"
		require.ErrorContains(t, Validate(cfg), "backend")
	})

	t.Run("RejectsBadBaseURL", func(t *testing.T) {
		cfg := base()
		cfg.AILink.BaseURL = "ftp://example.com"
		require.ErrorContains(t, Validate(cfg), "base_url")
	})
}
