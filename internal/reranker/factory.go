package reranker

import (
	"fmt"

	"github.com/fyrsmithlabs/ragindex/internal/config"
)

// NewModel builds the relevance model named by cfg.Provider.
func NewModel(cfg config.RerankerConfig) (Model, error) {
	switch cfg.Provider {
	case "jina", "":
		if cfg.APIKey.Value() == "" {
			return unavailable{}, nil
		}
		return NewJinaModel(JinaConfig{
			URL:               cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey.Value(),
			Timeout:           cfg.Timeout.Duration(),
			RequestsPerSecond: cfg.RequestsPerS,
		})
	case "overlap":
		return NewTermOverlapModel(), nil
	case "none":
		return unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown reranker provider: %s", cfg.Provider)
	}
}
