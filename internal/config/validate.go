package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configurations the request path cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		add("metrics.port out of range: %d", cfg.Metrics.Port)
	}

	ai := cfg.AILink
	if ai.DefaultTimeout < 0 {
		add("ailink.default_timeout must not be negative")
	}
	if r := ai.Retry; r != nil {
		if r.MaxRetries < 0 {
			add("ailink.retry.max_retries must not be negative")
		}
		if r.BaseDelay < 0 || r.MaxDelay < 0 {
			add("ailink.retry delays must not be negative")
		}
		if r.MaxDelay > 0 && r.MaxDelay < r.BaseDelay {
			add("ailink.retry.max_delay (%s) is below base_delay (%s)", r.MaxDelay, r.BaseDelay)
		}
	}
	if ai.Admission.Capacity < 1 {
		add("ailink.admission.capacity must be at least 1")
	}
	if ai.Admission.RefillPerSecond < 0 {
		add("ailink.admission.refill_per_second must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(ai.Admission.Backend)) {
	case "", "store":
	case "redis":
		if strings.TrimSpace(ai.Admission.RedisURL) == "" {
			add("ailink.admission.redis_url is required for the redis backend")
		}
	default:
		add("ailink.admission.backend %q is not supported", ai.Admission.Backend)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes must not be negative")
	}
	if ai.Demo.Delay < 0 {
		add("ailink.demo.delay must not be negative")
	}
	if err := validateURL(ai.BaseURL); err != nil {
		add("ailink.base_url: %v", err)
	}

	for id, provider := range ai.Providers {
		switch strings.ToLower(strings.TrimSpace(provider.AIProvider)) {
		case "", "openai":
		default:
			add("ailink.providers.%s.ai_provider %q is not supported", id, provider.AIProvider)
		}
		switch strings.ToLower(strings.TrimSpace(provider.SelectionPolicy)) {
		case "", "priority", "round_robin":
		default:
			add("ailink.providers.%s.selection_policy %q is not supported", id, provider.SelectionPolicy)
		}
		if err := validateURL(provider.BaseURL); err != nil {
			add("ailink.providers.%s.base_url: %v", id, err)
		}
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
