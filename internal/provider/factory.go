package provider

import (
	"fmt"
	"log/slog"

	"taskbot/internal/config"
	"taskbot/internal/domain"
)

// Factory builds chat providers from configuration.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Get returns a provider by name, or an error when it is unknown or
// disabled in config.
func (f *Factory) Get(name string) (domain.ChatProvider, error) {
	pc, ok := f.cfg.Providers[name]
	if !ok || !pc.Enabled {
		return nil, fmt.Errorf("provider %s not configured", name)
	}

	switch name {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  pc.APIKey,
			APIBase: pc.APIBase,
			Model:   pc.Model,
			Logger:  f.logger,
		}), nil
	case "claude":
		return NewClaude(ClaudeConfig{
			APIKey: pc.APIKey,
			Model:  pc.Model,
			Logger: f.logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %s", name)
	}
}

// Default returns the configured default provider.
func (f *Factory) Default() (domain.ChatProvider, error) {
	return f.Get(f.cfg.General.DefaultProvider)
}
