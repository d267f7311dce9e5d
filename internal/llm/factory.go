package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repoaudit/internal/config"
)

// NewClient builds the provider named by cfg and wraps it with logging,
// retries and rate limiting. The returned client belongs to one run.
func NewClient(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (Client, error) {
	var base Client
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		cli, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		base = cli
	case "groq":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("groq: api key is required")
		}
		base = NewGroqClient(cfg.APIKey, cfg.Model, "")
	case "fake":
		return Wrap(NewFakeClient(), WithLogging(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
	}
	return Wrap(base,
		WithLogging(logger),
		Retry(cfg.MaxAttempts, 500*time.Millisecond),
		RateLimit(cfg.RPS, cfg.Burst),
	), nil
}
