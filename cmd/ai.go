package cmd

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/ai/gemini"
	"github.com/spigell/resume-matcher/internal/secrets"
)

// newGateway builds the gateway for the configured provider. A missing
// default credential is not fatal: calls without a per-call key then fail
// as llm_error outcomes.
func newGateway(cfg *AIConfig, logger *zap.Logger) (*gemini.Gateway, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	switch {
	case errors.Is(err, secrets.ErrNotConfigured):
		logger.Warn("gemini api key is not configured",
			zap.String("hint", "set GEMINI_API_KEY, ai.gemini.api-key-file or pass --api-key"),
		)
	case err != nil:
		return nil, err
	}

	genLogger := logger.With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	return gemini.New(gemini.Config{
		DefaultAPIKey: apiKey,
		Model:         cfg.Gemini.Model,
		MaxRetries:    cfg.Gemini.MaxRetries,
		BaseDelay:     cfg.Gemini.BaseDelay,
		MaxDelay:      cfg.Gemini.MaxDelay,
		MaxLogLength:  cfg.Gemini.MaxLogLength,
	}, genLogger), nil
}
