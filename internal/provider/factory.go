package provider

import (
	"fmt"
	"log/slog"

	"signallama/internal/config"
	"signallama/internal/domain"
)

// constructor builds a provider from the loaded configuration.
type constructor func(cfg *config.Config, logger *slog.Logger) domain.Provider

var constructors = map[string]constructor{
	"ollama": func(cfg *config.Config, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{
			APIBase:      cfg.LLM.APIBase,
			DefaultModel: cfg.LLM.Model,
			Logger:       logger,
		})
	},
	"openai": func(cfg *config.Config, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			APIBase: cfg.LLM.APIBase,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
	},
	"privatemode": func(cfg *config.Config, logger *slog.Logger) domain.Provider {
		return NewPrivateMode(PrivateModeConfig{
			ProxyBase: cfg.PrivateMode.ProxyBase(),
			APIKey:    cfg.PrivateMode.APIKey,
			Model:     cfg.LLM.Model,
			Verify:    cfg.PrivateMode.VerifyAttestation,
			Logger:    logger,
		})
	},
}

// New selects the configured LLM provider. Unknown names with an API base are
// treated as OpenAI-compatible, matching how most self-hosted backends expose
// themselves.
func New(cfg *config.Config, logger *slog.Logger) (domain.Provider, error) {
	name := cfg.LLM.Provider
	if ctor, ok := constructors[name]; ok {
		return ctor(cfg, logger), nil
	}
	if cfg.LLM.APIBase != "" {
		logger.Info("unknown provider, assuming OpenAI-compatible API", "provider", name)
		return NewOpenAI(OpenAIConfig{
			Name:    name,
			APIKey:  cfg.LLM.APIKey,
			APIBase: cfg.LLM.APIBase,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown provider %q and no llm.apiBase to fall back on", name)
}
