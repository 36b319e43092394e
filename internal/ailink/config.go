package ailink

import "time"

// Config defines upstream, admission and credential configuration for the
// chat request path.
type Config struct {
	// DefaultProvider selects the provider instance when more than one is
	// enabled.
	DefaultProvider string `mapstructure:"default_provider"`

	// DefaultTimeout, when positive, bounds each Send call. Expiry surfaces
	// as a cancelled request.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// BaseURL and Model apply when no provider instance overrides them.
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`

	Identification IdentificationConfig `mapstructure:"identification"`
	// Retry nil keeps the driver's default policy. A set value is used as
	// is, so all zeros means no retries.
	Retry     *RetryConfig    `mapstructure:"retry"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Demo      DemoConfig      `mapstructure:"demo"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`
}

// IdentificationConfig is sent as the HTTP-Referer / X-Title header pair.
type IdentificationConfig struct {
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// AdmissionConfig sizes the local token bucket.
type AdmissionConfig struct {
	Capacity        float64 `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`

	// Persist carries bucket state across CLI invocations.
	Persist bool `mapstructure:"persist"`
	// Backend is where persisted state lives: "store" (libsql) or "redis".
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
}

// DemoConfig controls the reply path used when no credential is available.
type DemoConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "openai-main").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the driver identifier. Only "openai" (and compatible
	// endpoints) is supported.
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	// If missing/invalid, selection falls back to SelectionPolicy.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string            `mapstructure:"base_url"`
	Models  map[string]string `mapstructure:"models"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}
