package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultProvider:       "openai",
			MaxConcurrentMessages: 8,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled: false,
				Model:   "gpt-4o-mini",
			},
			"claude": {
				Enabled: false,
			},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "tasks.db"),
		},
		Calendar: CalendarConfig{
			Enabled:    false,
			CalendarID: "primary",
		},
		Voice: VoiceConfig{
			Enabled: false,
			Model:   "whisper-1",
		},
		Reminders: RemindersConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
