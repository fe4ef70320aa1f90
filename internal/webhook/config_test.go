package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/github-hook/internal/config"
)

func TestFromServiceConfig(t *testing.T) {
	cfg, err := FromServiceConfig(config.ServiceConfig{
		Listen:      "127.0.0.1:3000",
		MaxBodySize: "2MB",
	}, "", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Listen)
	assert.EqualValues(t, 2*1024*1024, cfg.MaxBodySize)
	assert.Equal(t, "1.2.3", cfg.Version)
}

func TestFromServiceConfig_PortOverride(t *testing.T) {
	cfg, err := FromServiceConfig(config.ServiceConfig{Listen: "127.0.0.1:3000"}, "8080", "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.EqualValues(t, DefaultMaxBodySize, cfg.MaxBodySize)
	assert.Equal(t, DefaultVersion, cfg.Version)
}

func TestFromServiceConfig_Defaults(t *testing.T) {
	cfg, err := FromServiceConfig(config.ServiceConfig{}, "", "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultListen, cfg.Listen)
}

func TestFromServiceConfig_InvalidBodySize(t *testing.T) {
	_, err := FromServiceConfig(config.ServiceConfig{MaxBodySize: "lots"}, "", "")
	assert.ErrorContains(t, err, "invalid max_body_size")
}
