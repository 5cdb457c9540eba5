package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultJinaURL   = "https://api.jina.ai/v1/rerank"
	defaultJinaModel = "jina-reranker-v2-base-multilingual"
	defaultTimeout   = 10 * time.Second
	defaultBurst     = 1
)

// JinaConfig configures a Jina-compatible rerank endpoint.
type JinaConfig struct {
	// URL is the full rerank endpoint.
	URL    string
	Model  string
	APIKey string
	// Timeout bounds each request.
	Timeout time.Duration
	// RequestsPerSecond limits outbound calls; <= 0 disables limiting.
	RequestsPerSecond float64
}

// JinaModel calls POST /v1/rerank.
type JinaModel struct {
	config     JinaConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

type jinaRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n,omitempty"`
	Documents []string `json:"documents"`
}

type jinaResponse struct {
	Results []jinaResult `json:"results"`
}

type jinaResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewJinaModel creates a JinaModel.
func NewJinaModel(cfg JinaConfig) (*JinaModel, error) {
	if cfg.URL == "" {
		cfg.URL = defaultJinaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultJinaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("jina API key required")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &JinaModel{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, defaultBurst),
	}, nil
}

// Score implements Model.
func (m *JinaModel) Score(ctx context.Context, query string, documents []string, topN int) ([]Score, error) {
	if len(documents) == 0 {
		return []Score{}, nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(jinaRequest{
		Model:     m.config.Model,
		Query:     query,
		TopN:      topN,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	scores := make([]Score, len(parsed.Results))
	for i, r := range parsed.Results {
		scores[i] = Score{Index: r.Index, Relevance: r.RelevanceScore}
	}
	return scores, nil
}

// Name implements Model.
func (m *JinaModel) Name() string { return m.config.Model }
