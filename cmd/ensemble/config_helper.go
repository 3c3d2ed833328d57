package main

import (
	"os"

	"github.com/ChamsBouzaiene/ensemble/internal/config"
	"github.com/ChamsBouzaiene/ensemble/internal/providers"
)

// applyConfigToEnv lets the saved config override the shell environment
// and .env values for the selected provider.
func applyConfigToEnv(cfg *config.Config) {
	if cfg.LLMProvider != "" {
		os.Setenv("LLM_PROVIDER", cfg.LLMProvider)
	}
	prefix, ok := providers.EnvPrefix(cfg.LLMProvider)
	if !ok {
		return
	}
	if cfg.APIKey != "" {
		os.Setenv(prefix+"_API_KEY", cfg.APIKey)
	}
	if cfg.Model != "" {
		os.Setenv(prefix+"_MODEL", cfg.Model)
	}
	if cfg.BaseURL != "" {
		os.Setenv(prefix+"_BASE_URL", cfg.BaseURL)
	}
}
