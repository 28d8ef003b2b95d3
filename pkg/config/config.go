// Package config loads the relay configuration from a JSON file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Discord DiscordConfig `json:"discord"`
	QQ      QQConfig      `json:"qq"`
	Links   []LinkConfig  `json:"links"`

	// IgnorePrefixes lists leading characters that suppress relaying of a
	// message, the usual command-prefix convention.
	IgnorePrefixes []string `env:"DCQG_RELAY_IGNORE_PREFIXES" json:"ignore_prefixes"`

	DataDir  string `env:"DCQG_RELAY_DATA_DIR"  json:"data_dir"`
	LogLevel string `env:"DCQG_RELAY_LOG_LEVEL" json:"log_level"`
}

type DiscordConfig struct {
	Token string `env:"DCQG_RELAY_DISCORD_TOKEN" json:"token"`
	// Proxy is an optional outbound proxy URL used for the Discord API and
	// for attachment downloads (http/https/socks5).
	Proxy string `env:"DCQG_RELAY_DISCORD_PROXY" json:"proxy,omitempty"`
}

type QQConfig struct {
	AppID string `env:"DCQG_RELAY_QQ_APP_ID" json:"app_id"`
	// Secret is the bot's app secret, exchanged for short-lived access
	// tokens at runtime.
	Secret string `env:"DCQG_RELAY_QQ_SECRET" json:"secret"`
	// Sandbox routes QQ API calls to the sandbox environment.
	Sandbox bool `env:"DCQG_RELAY_QQ_SANDBOX" json:"sandbox,omitempty"`
}

// LinkConfig pairs one QQ guild channel with one Discord channel. The webhook
// fields may be pre-provisioned; when empty they are filled in at startup.
type LinkConfig struct {
	QQGuildID   string `json:"qq_guild_id"`
	QQChannelID string `json:"qq_channel_id"`
	DCGuildID   string `json:"dc_guild_id"`
	DCChannelID string `json:"dc_channel_id"`

	WebhookID    string `json:"webhook_id,omitempty"`
	WebhookToken string `json:"webhook_token,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		IgnorePrefixes: []string{"/"},
		DataDir:        filepath.Join(home, ".dcqg-relay"),
		LogLevel:       "info",
	}
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dcqg-relay", "config.json")
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the relay cannot run with. Duplicate
// channel ids on either side of a link would make registry lookups ambiguous,
// so they are refused at load time rather than silently shadowed.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord token is required")
	}
	if c.QQ.AppID == "" || c.QQ.Secret == "" {
		return errors.New("qq app_id and secret are required")
	}
	if len(c.Links) == 0 {
		return errors.New("at least one channel link is required")
	}

	qqSeen := make(map[string]int, len(c.Links))
	dcSeen := make(map[string]int, len(c.Links))
	for i, l := range c.Links {
		if l.QQGuildID == "" || l.QQChannelID == "" || l.DCGuildID == "" || l.DCChannelID == "" {
			return fmt.Errorf("links[%d]: all four guild/channel ids are required", i)
		}
		if j, ok := qqSeen[l.QQChannelID]; ok {
			return fmt.Errorf("links[%d]: qq channel %s already linked at links[%d]", i, l.QQChannelID, j)
		}
		if j, ok := dcSeen[l.DCChannelID]; ok {
			return fmt.Errorf("links[%d]: discord channel %s already linked at links[%d]", i, l.DCChannelID, j)
		}
		qqSeen[l.QQChannelID] = i
		dcSeen[l.DCChannelID] = i
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
