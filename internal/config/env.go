package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Env specs take the variable suffix after EnvPrefix and a dotted config path.
// Durations are read as strings and converted by the decode hook.
func envString(name, path string) EnvVarSpec {
	return EnvVarSpec{Name: EnvPrefix + name, Path: strings.Split(path, "."), Type: EnvString}
}

func envInt(name, path string) EnvVarSpec {
	return EnvVarSpec{Name: EnvPrefix + name, Path: strings.Split(path, "."), Type: EnvInt}
}

func envBool(name, path string) EnvVarSpec {
	return EnvVarSpec{Name: EnvPrefix + name, Path: strings.Split(path, "."), Type: EnvBool}
}

func getEnvSpecs() []EnvVarSpec {
	return []EnvVarSpec{
		envString("HOST", "server.host"),
		envInt("PORT", "server.port"),
		envString("READ_TIMEOUT", "server.read_timeout"),
		envString("WRITE_TIMEOUT", "server.write_timeout"),
		envString("SHUTDOWN_TIMEOUT", "server.shutdown_timeout"),
		envString("JWT_SECRET", "server.auth.jwt_secret"),
		envString("ADMIN_TOKEN", "server.admin_token"),

		envString("LOG_LEVEL", "logging.level"),
		envString("LOG_FILE", "logging.file.path"),

		envString("DB_DRIVER", "store.driver"),
		envString("DB_PATH", "store.path"),
		envString("DB_URL", "store.url"),
		envString("DB_AUTH_TOKEN", "store.auth_token"),

		envString("AILINK_DEFAULT_PROVIDER", "ailink.default_provider"),
		envString("AILINK_DEFAULT_TIMEOUT", "ailink.default_timeout"),
		envString("AILINK_BASE_URL", "ailink.base_url"),
		envString("AILINK_MODEL", "ailink.model"),
		envInt("AILINK_RETRY_MAX_RETRIES", "ailink.retry.max_retries"),
		envString("AILINK_RETRY_BASE_DELAY", "ailink.retry.base_delay"),
		envString("AILINK_RETRY_MAX_DELAY", "ailink.retry.max_delay"),
		envBool("AILINK_ADMISSION_PERSIST", "ailink.admission.persist"),
		envString("AILINK_ADMISSION_BACKEND", "ailink.admission.backend"),
		envString("AILINK_ADMISSION_REDIS_URL", "ailink.admission.redis_url"),
		envString("AILINK_DEMO_DELAY", "ailink.demo.delay"),

		envBool("METRICS_ENABLED", "metrics.enabled"),
		envInt("METRICS_PORT", "metrics.port"),
		envBool("HEALTH_ENABLED", "health.enabled"),
	}
}

// floatEnv lists settings gofulmen env specs cannot type as floats.
var floatEnv = map[string]string{
	"AILINK_ADMISSION_CAPACITY":          "ailink.admission.capacity",
	"AILINK_ADMISSION_REFILL_PER_SECOND": "ailink.admission.refill_per_second",
}

func applyFloatEnvOverrides(overrides map[string]any) error {
	for name, path := range floatEnv {
		raw := strings.TrimSpace(os.Getenv(EnvPrefix + name))
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		setPath(overrides, strings.Split(path, "."), parsed)
	}
	return nil
}

// providerEnvFields are the scalar settings accepted in
// CHATGATE_AILINK_PROVIDERS_<ID>_<FIELD>.
var providerEnvFields = map[string]func(provider map[string]any, value string){
	"ENABLED":            func(p map[string]any, v string) { p["enabled"] = strings.EqualFold(v, "true") },
	"AI_PROVIDER":        func(p map[string]any, v string) { p["ai_provider"] = strings.ToLower(v) },
	"DEFAULT_CREDENTIAL": func(p map[string]any, v string) { p["default_credential"] = v },
	"SELECTION_POLICY":   func(p map[string]any, v string) { p["selection_policy"] = strings.ToLower(v) },
	"BASE_URL":           func(p map[string]any, v string) { p["base_url"] = v },
}

// applyProviderEnvOverrides maps provider instance variables onto
// ailink.providers.<id>. Underscores in the id become dashes, so
// CHATGATE_AILINK_PROVIDERS_OPENAI_MAIN_BASE_URL sets
// ailink.providers.openai-main.base_url. Models and credentials use
// ..._MODELS_<NAME> and ..._CREDENTIALS_<N>_<FIELD>.
func applyProviderEnvOverrides(overrides map[string]any) {
	prefix := EnvPrefix + "AILINK_PROVIDERS_"
	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			applyProviderEnv(overrides, strings.Split(key[len(prefix):], "_"), value)
		}
	}
}

// applyProviderEnv takes the shortest id that leaves a known field.
func applyProviderEnv(overrides map[string]any, parts []string, value string) {
	for i := 1; i < len(parts); i++ {
		id := strings.ToLower(strings.Join(parts[:i], "-"))
		rest := parts[i:]

		if set, ok := providerEnvFields[strings.Join(rest, "_")]; ok {
			set(providerNode(overrides, id), value)
			return
		}

		switch rest[0] {
		case "MODELS":
			if len(rest) > 1 {
				models := ensureMap(providerNode(overrides, id), "models")
				models[strings.ToLower(strings.Join(rest[1:], "_"))] = value
			}
			return
		case "CREDENTIALS":
			if len(rest) < 3 {
				return
			}
			idx, err := strconv.Atoi(rest[1])
			if err != nil || idx < 0 {
				return
			}
			setCredentialEnv(providerNode(overrides, id), idx, strings.ToLower(strings.Join(rest[2:], "_")), value)
			return
		}
	}
}

func setCredentialEnv(provider map[string]any, idx int, field, value string) {
	creds, _ := provider["credentials"].([]any)
	for len(creds) <= idx {
		creds = append(creds, map[string]any{})
	}
	provider["credentials"] = creds

	cred, ok := creds[idx].(map[string]any)
	if !ok {
		cred = map[string]any{}
		creds[idx] = cred
	}

	switch field {
	case "priority":
		if n, err := strconv.Atoi(value); err == nil {
			cred[field] = n
			return
		}
		cred[field] = value
	case "enabled":
		cred[field] = strings.EqualFold(value, "true")
	default:
		cred[field] = value
	}
}

func providerNode(overrides map[string]any, id string) map[string]any {
	return ensureMap(ensureMap(ensureMap(overrides, "ailink"), "providers"), id)
}

func setPath(root map[string]any, path []string, value any) {
	node := root
	for _, key := range path[:len(path)-1] {
		node = ensureMap(node, key)
	}
	node[path[len(path)-1]] = value
}
