package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyProviderEnv(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		path  []string
		want  any
	}{
		{"enabled", "OPENAI_ENABLED", "TRUE", []string{"openai", "enabled"}, true},
		{"multi part id", "OPENAI_MAIN_BASE_URL", "https://example.test/v1", []string{"openai-main", "base_url"}, "https://example.test/v1"},
		{"ai provider lowercased", "LOCAL_AI_PROVIDER", "OpenAI", []string{"local", "ai_provider"}, "openai"},
		{"policy", "OPENAI_SELECTION_POLICY", "ROUND_ROBIN", []string{"openai", "selection_policy"}, "round_robin"},
		{"default credential", "OPENAI_DEFAULT_CREDENTIAL", "work", []string{"openai", "default_credential"}, "work"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			overrides := map[string]any{}
			applyProviderEnv(overrides, splitKey(tc.key), tc.value)

			provider := overrides["ailink"].(map[string]any)["providers"].(map[string]any)[tc.path[0]]
			require.NotNil(t, provider, "provider %s", tc.path[0])
			assert.Equal(t, tc.want, provider.(map[string]any)[tc.path[1]])
		})
	}
}

func TestApplyProviderEnvModelsAndCredentials(t *testing.T) {
	overrides := map[string]any{}
	applyProviderEnv(overrides, splitKey("GROQ_MODELS_FAST_CHAT"), "llama-3")
	applyProviderEnv(overrides, splitKey("GROQ_CREDENTIALS_1_API_KEY"), "sk-b")
	applyProviderEnv(overrides, splitKey("GROQ_CREDENTIALS_1_PRIORITY"), "3")
	applyProviderEnv(overrides, splitKey("GROQ_CREDENTIALS_1_ENABLED"), "true")

	groq := providerNode(overrides, "groq")
	assert.Equal(t, "llama-3", groq["models"].(map[string]any)["fast_chat"])

	creds := groq["credentials"].([]any)
	require.Len(t, creds, 2)
	second := creds[1].(map[string]any)
	assert.Equal(t, "sk-b", second["api_key"])
	assert.Equal(t, 3, second["priority"])
	assert.Equal(t, true, second["enabled"])
}

func TestApplyProviderEnvIgnoresUnknownFields(t *testing.T) {
	overrides := map[string]any{}
	applyProviderEnv(overrides, splitKey("OPENAI_COLOR"), "blue")
	applyProviderEnv(overrides, splitKey("OPENAI_CREDENTIALS_X_API_KEY"), "sk")
	assert.Empty(t, overrides["ailink"])
}

func TestFloatEnvOverrides(t *testing.T) {
	t.Setenv("CHATGATE_AILINK_ADMISSION_CAPACITY", "12.5")

	overrides := map[string]any{}
	require.NoError(t, applyFloatEnvOverrides(overrides))
	admission := overrides["ailink"].(map[string]any)["admission"].(map[string]any)
	assert.Equal(t, 12.5, admission["capacity"])

	t.Setenv("CHATGATE_AILINK_ADMISSION_REFILL_PER_SECOND", "fast")
	require.ErrorContains(t, applyFloatEnvOverrides(map[string]any{}), "CHATGATE_AILINK_ADMISSION_REFILL_PER_SECOND")
}

func splitKey(key string) []string {
	return strings.Split(key, "_")
}
