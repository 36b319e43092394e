package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/config"
)

func TestStarterConfigLoads(t *testing.T) {
	data, err := starterConfig()
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.True(t, cfg.AILink.Admission.Persist)
	require.Equal(t, 10.0, cfg.AILink.Admission.Capacity)
	require.Equal(t, "store", cfg.AILink.Admission.Backend)
}

func TestFormatFileSize(t *testing.T) {
	require.Equal(t, "512 bytes", formatFileSize(512))
	require.Equal(t, "1.5 KB", formatFileSize(1536))
	require.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}
