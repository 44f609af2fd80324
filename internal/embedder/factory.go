package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds embedder configuration
type Config struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	Logger            zerolog.Logger
}

// New creates an embedder with explicit configuration. Unset endpoint,
// model and dimension fall back to the provider's defaults.
func New(cfg Config) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var retry *RetryConfig
	if cfg.MaxRetries > 0 {
		r := DefaultRetryConfig()
		r.MaxRetries = cfg.MaxRetries
		retry = &r
	}

	switch provider {
	case ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension), nil
	case ProviderJina:
		return NewHTTPProvider(HTTPConfig{
			Name:              ProviderJina,
			BaseURL:           orDefault(cfg.BaseURL, DefaultJinaBaseURL),
			APIKey:            cfg.APIKey,
			Model:             orDefault(cfg.Model, DefaultJinaModel),
			Dimension:         orDefaultInt(cfg.Dimension, JinaDimension),
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Retry:             retry,
			Logger:            cfg.Logger,
		})
	case ProviderOpenAI:
		return NewHTTPProvider(HTTPConfig{
			Name:              ProviderOpenAI,
			BaseURL:           orDefault(cfg.BaseURL, DefaultOpenAIBaseURL),
			APIKey:            cfg.APIKey,
			Model:             orDefault(cfg.Model, DefaultOpenAIModel),
			Dimension:         orDefaultInt(cfg.Dimension, OpenAIDimension),
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Retry:             retry,
			Logger:            cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
