package config

import "github.com/spf13/viper"

// AppName is used for XDG paths, the env prefix and the default store file.
const AppName = "chatgate"

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.issuer", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.compress", true)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Upstream defaults
	v.SetDefault("ailink.base_url", "https://api.openai.com/v1")
	v.SetDefault("ailink.model", "gpt-4o-mini")
	v.SetDefault("ailink.default_timeout", "0s")
	v.SetDefault("ailink.identification.referer", "https://github.com/namelens/chatgate")
	v.SetDefault("ailink.identification.title", "chatgate")
	v.SetDefault("ailink.retry.max_retries", 4)
	v.SetDefault("ailink.retry.base_delay", "300ms")
	v.SetDefault("ailink.retry.max_delay", "7s")
	v.SetDefault("ailink.admission.capacity", 10)
	v.SetDefault("ailink.admission.refill_per_second", 1)
	v.SetDefault("ailink.admission.persist", false)
	v.SetDefault("ailink.admission.backend", "store")
	v.SetDefault("ailink.admission.redis_url", "")
	v.SetDefault("ailink.demo.delay", "600ms")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}
