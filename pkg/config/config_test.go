package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.Token = "dc-token"
	cfg.QQ.AppID = "123"
	cfg.QQ.Secret = "qq-secret"
	cfg.Links = []LinkConfig{{
		QQGuildID: "qg", QQChannelID: "qc",
		DCGuildID: "dg", DCChannelID: "dc",
	}}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing discord token", func(c *Config) { c.Discord.Token = "" }},
		{"missing qq app id", func(c *Config) { c.QQ.AppID = "" }},
		{"missing qq secret", func(c *Config) { c.QQ.Secret = "" }},
		{"no links", func(c *Config) { c.Links = nil }},
		{"incomplete link", func(c *Config) { c.Links[0].DCChannelID = "" }},
		{"duplicate qq channel", func(c *Config) {
			c.Links = append(c.Links, LinkConfig{
				QQGuildID: "qg", QQChannelID: "qc",
				DCGuildID: "dg", DCChannelID: "dc2",
			})
		}},
		{"duplicate discord channel", func(c *Config) {
			c.Links = append(c.Links, LinkConfig{
				QQGuildID: "qg", QQChannelID: "qc2",
				DCGuildID: "dg", DCChannelID: "dc",
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, SaveConfig(path, validConfig()))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "dc-token", cfg.Discord.Token)
	assert.Equal(t, "123", cfg.QQ.AppID)
	require.Len(t, cfg.Links, 1)
	assert.Equal(t, "dc", cfg.Links[0].DCChannelID)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, SaveConfig(path, validConfig()))

	t.Setenv("DCQG_RELAY_DISCORD_TOKEN", "env-token")
	t.Setenv("DCQG_RELAY_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFileStillValidates(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err, "tokens cannot come from nowhere")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"/"}, cfg.IgnorePrefixes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DataDir)
}
