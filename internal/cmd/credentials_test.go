package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/config"
)

func TestReadAPIKeyFromPipe(t *testing.T) {
	var prompt bytes.Buffer
	key, err := readAPIKey(strings.NewReader("  sk-test-123  \nsecond line\n"), &prompt, "openai", false)
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", key)
	require.Empty(t, prompt.String())

	key, err = readAPIKey(strings.NewReader("sk-no-newline"), &prompt, "openai", false)
	require.NoError(t, err)
	require.Equal(t, "sk-no-newline", key)
}

func TestReadAPIKeyRejectsEmpty(t *testing.T) {
	_, err := readAPIKey(strings.NewReader("\n"), &bytes.Buffer{}, "openai", false)
	require.ErrorContains(t, err, "cannot be empty")
}

func TestCredentialProvider(t *testing.T) {
	cfg := &config.Config{AILink: ailink.Config{BaseURL: "https://api.openai.com/v1", Model: "gpt-test"}}

	provider, err := credentialProvider(cfg, []string{" work "})
	require.NoError(t, err)
	require.Equal(t, "work", provider)

	provider, err = credentialProvider(cfg, nil)
	require.NoError(t, err)
	require.NotEmpty(t, provider)
}
