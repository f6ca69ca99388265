package config

// discordMaxFileBytes is the conservative Discord upload cap (8 MiB).
// Boosted servers allow more; override via telegram.maxFileBytes or
// DISCORD_MAX_FILE_BYTES.
const discordMaxFileBytes = 8 * 1024 * 1024

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Discourse: DiscourseConfig{
			Enabled:       false,
			Port:          8080,
			Path:          "/webhook/discourse",
			ExcerptLength: 500,
		},
		Telegram: TelegramConfig{
			Enabled:      false,
			MaxFileBytes: discordMaxFileBytes,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9091,
		},
	}
}
