// Package config loads the optional Hive daemon configuration file.
//
// Configuration lives at <home>/config.yaml. Every field has a working
// default so a missing file is not an error; environment variables override
// the file for secrets and the heartbeat interval.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Log configures daemon logging.
	Log LogConfig `yaml:"log"`

	// Heartbeat configures the daemon heartbeat timer.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Memory configures the passive memory pipeline.
	Memory MemoryConfig `yaml:"memory"`

	// Integrations configures messaging platform adapters.
	Integrations IntegrationsConfig `yaml:"integrations"`

	// Provider selects and configures the model backend.
	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig selects the model backend.
type ProviderConfig struct {
	// Vendor is the provider name: anthropic, openai, google, groq,
	// mistral, openrouter, together, ollama.
	Vendor string `yaml:"vendor"`

	// Model overrides the vendor's default model.
	Model string `yaml:"model"`

	// APIKey overrides the vendor's environment variable.
	APIKey string `yaml:"api_key"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
}

// HeartbeatConfig configures the heartbeat timer.
type HeartbeatConfig struct {
	// Interval between heartbeat ticks. Minimum 250ms.
	Interval time.Duration `yaml:"interval"`
}

// MemoryConfig configures crystallization of episodes into long-term facts.
type MemoryConfig struct {
	// CrystallizeEvery triggers crystallization every N completed exchanges.
	CrystallizeEvery int `yaml:"crystallize_every"`

	// CrystallizeEpisodes is the number of recent episodes synthesized.
	CrystallizeEpisodes int `yaml:"crystallize_episodes"`

	// CrystallizeWindow is the recency window required for crystallization.
	CrystallizeWindow time.Duration `yaml:"crystallize_window"`
}

// IntegrationsConfig holds per-platform adapter credentials.
type IntegrationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	// Token is the bot token from @BotFather.
	Token string `yaml:"token"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	// Token is the bot token.
	Token string `yaml:"token"`
}

// SlackConfig configures the Slack adapter (socket mode).
type SlackConfig struct {
	// BotToken is the xoxb- bot token.
	BotToken string `yaml:"bot_token"`

	// AppToken is the xapp- app-level token for socket mode.
	AppToken string `yaml:"app_token"`
}

// HeartbeatEnvVar overrides the heartbeat interval in milliseconds.
const HeartbeatEnvVar = "HIVE_HEARTBEAT_MS"

// MinHeartbeatInterval is the floor for the heartbeat timer.
const MinHeartbeatInterval = 250 * time.Millisecond

// Default returns the default configuration.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info"},
		Heartbeat: HeartbeatConfig{Interval: 30 * time.Second},
		Memory: MemoryConfig{
			CrystallizeEvery:    10,
			CrystallizeEpisodes: 10,
			CrystallizeWindow:   7 * 24 * time.Hour,
		},
		Provider: ProviderConfig{Vendor: "anthropic"},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, errors.Wrap(err, "failed to read config file")
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config file")
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if raw := os.Getenv(HeartbeatEnvVar); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			c.Heartbeat.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if token := os.Getenv("HIVE_TELEGRAM_TOKEN"); token != "" {
		c.Integrations.Telegram.Token = token
	}
	if token := os.Getenv("HIVE_DISCORD_TOKEN"); token != "" {
		c.Integrations.Discord.Token = token
	}
	if token := os.Getenv("HIVE_SLACK_BOT_TOKEN"); token != "" {
		c.Integrations.Slack.BotToken = token
	}
	if token := os.Getenv("HIVE_SLACK_APP_TOKEN"); token != "" {
		c.Integrations.Slack.AppToken = token
	}
	if vendor := os.Getenv("HIVE_PROVIDER"); vendor != "" {
		c.Provider.Vendor = vendor
	}
	if model := os.Getenv("HIVE_MODEL"); model != "" {
		c.Provider.Model = model
	}
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = defaults.Heartbeat.Interval
	}
	if c.Heartbeat.Interval < MinHeartbeatInterval {
		c.Heartbeat.Interval = MinHeartbeatInterval
	}
	if c.Memory.CrystallizeEvery <= 0 {
		c.Memory.CrystallizeEvery = defaults.Memory.CrystallizeEvery
	}
	if c.Memory.CrystallizeEpisodes <= 0 {
		c.Memory.CrystallizeEpisodes = defaults.Memory.CrystallizeEpisodes
	}
	if c.Memory.CrystallizeWindow <= 0 {
		c.Memory.CrystallizeWindow = defaults.Memory.CrystallizeWindow
	}
	if c.Provider.Vendor == "" {
		c.Provider.Vendor = defaults.Provider.Vendor
	}
}

// HeartbeatStaleness returns the staleness threshold the watcher uses to
// decide the daemon is hung. Fixed at three heartbeat periods with a floor
// of 90 seconds so user configuration can never invert the relationship
// with the heartbeat interval.
func (c *Config) HeartbeatStaleness() time.Duration {
	staleness := 3 * c.Heartbeat.Interval
	if staleness < 90*time.Second {
		staleness = 90 * time.Second
	}
	return staleness
}
