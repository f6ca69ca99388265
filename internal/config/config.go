package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for relaybot.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Discourse DiscourseConfig `json:"discourse" yaml:"discourse"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// DiscourseConfig configures the Discourse webhook receiver.
type DiscourseConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Port       int    `json:"port" yaml:"port"`
	Path       string `json:"path" yaml:"path"`
	Secret     string `json:"secret" yaml:"secret"`
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl"`
	// BaseURL is the public URL of the forum, used to build post links
	// (e.g. https://forum.example.com).
	BaseURL       string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	ExcerptLength int    `json:"excerptLength,omitempty" yaml:"excerptLength,omitempty"`
}

// TelegramConfig configures the Telegram channel bridge.
type TelegramConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Token      string `json:"token" yaml:"token"`
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl"`
	// ChannelURL makes the channel title in Discord a clickable link
	// (invite link for private channels).
	ChannelURL string `json:"channelUrl,omitempty" yaml:"channelUrl,omitempty"`
	// AllowFrom restricts forwarding to the listed channel IDs (empty = all).
	AllowFrom    FlexStringList `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty"`
	MaxFileBytes int64          `json:"maxFileBytes" yaml:"maxFileBytes"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["-100123", -100456] both become strings).
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

func (f *FlexStringList) UnmarshalYAML(value *yaml.Node) error {
	var ss []string
	if err := value.Decode(&ss); err == nil {
		*f = ss
		return nil
	}
	var raw []any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case int:
			result = append(result, strconv.Itoa(v))
		case int64:
			result = append(result, strconv.FormatInt(v, 10))
		case float64:
			result = append(result, strconv.FormatInt(int64(v), 10))
		default:
			result = append(result, fmt.Sprintf("%v", v))
		}
	}
	*f = result
	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "relaybot.json"
	}
	return filepath.Join(home, ".relaybot", "config.json")
}

// Load reads a JSON or YAML config file (by extension), expands ${VAR}
// references against the environment, and validates the result.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ApplyEnv overlays the well-known environment variables onto cfg. A bridge
// is switched on when its credentials arrive via the environment, so the
// service can run without any config file at all.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DISCOURSE_SECRET"); v != "" {
		cfg.Discourse.Secret = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Discourse.WebhookURL = v
	}
	if v := os.Getenv("DISCOURSE_BASE_URL"); v != "" {
		cfg.Discourse.BaseURL = v
	}
	if cfg.Discourse.Secret != "" && cfg.Discourse.WebhookURL != "" {
		cfg.Discourse.Enabled = true
	}

	if v := os.Getenv("TG_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Telegram.WebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_URL"); v != "" {
		cfg.Telegram.ChannelURL = v
	}
	if v := os.Getenv("DISCORD_MAX_FILE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Telegram.MaxFileBytes = n
		}
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.WebhookURL != "" {
		cfg.Telegram.Enabled = true
	}
}

// Save writes the config as indented JSON, creating parent directories.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Discourse.Port < 0 || cfg.Discourse.Port > 65535 {
		errs = append(errs, "discourse.port must be between 0 and 65535")
	}
	if cfg.Discourse.Path != "" && !strings.HasPrefix(cfg.Discourse.Path, "/") {
		errs = append(errs, "discourse.path must start with /")
	}
	if cfg.Discourse.Enabled {
		if cfg.Discourse.Secret == "" {
			errs = append(errs, "discourse.secret is required when the discourse bridge is enabled")
		}
		if cfg.Discourse.WebhookURL == "" {
			errs = append(errs, "discourse.webhookUrl is required when the discourse bridge is enabled")
		}
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.Token == "" {
			errs = append(errs, "telegram.token is required when the telegram bridge is enabled")
		}
		if cfg.Telegram.WebhookURL == "" {
			errs = append(errs, "telegram.webhookUrl is required when the telegram bridge is enabled")
		}
	}
	if cfg.Telegram.MaxFileBytes < 0 {
		errs = append(errs, "telegram.maxFileBytes must be >= 0")
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
