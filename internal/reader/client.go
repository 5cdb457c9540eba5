// Package reader fetches web pages as markdown through a remote reader
// service and caches the results per instance.
package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

const (
	defaultBaseURL   = "https://r.jina.ai/"
	defaultCacheSize = 1000
	defaultTimeout   = 30 * time.Second
	maxResponseSize  = 16 << 20
)

var (
	// ErrEmptyURL is returned when Crawl is called without a URL.
	ErrEmptyURL = errors.New("url is required")

	// ErrNoContent is returned when the reader answers without page content.
	ErrNoContent = errors.New("reader returned no content")
)

// Page is a crawled page.
type Page struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

type readerResponse struct {
	Code int  `json:"code"`
	Data Page `json:"data"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token     string
	CacheSize int
	Timeout   time.Duration
	// RequestsPerSecond limits uncached fetches; <= 0 disables limiting.
	RequestsPerSecond float64
}

// ConfigFromSettings converts the reader section of the config file.
func ConfigFromSettings(s config.ReaderConfig) Config {
	return Config{
		BaseURL:           s.BaseURL,
		Token:             s.Token.Value(),
		CacheSize:         s.CacheSize,
		Timeout:           s.Timeout.Duration(),
		RequestsPerSecond: s.RequestsPerS,
	}
}

// Client crawls pages. Successful results are kept in a size-bounded LRU
// owned by the client.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lru.Cache[string, Page]
	logger     *logging.Logger
}

// New creates a Client. logger may be nil.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cache, err := lru.New[string, Page](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating crawl cache: %w", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		cache:      cache,
		logger:     logger.Named("reader"),
	}, nil
}

// Crawl returns the page at url, from cache when present.
func (c *Client) Crawl(ctx context.Context, url string) (Page, error) {
	if url == "" {
		return Page{}, ErrEmptyURL
	}
	if page, ok := c.cache.Get(url); ok {
		c.logger.Debug(ctx, "crawl cache hit", zap.String("url", url))
		return page, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limiter error: %w", err)
	}
	page, err := c.fetch(ctx, url)
	if err != nil {
		return Page{}, err
	}
	c.cache.Add(url, page)
	c.logger.Info(ctx, "page crawled",
		zap.String("url", url),
		zap.Int("bytes", len(page.Content)),
	)
	return page, nil
}

// Cached reports whether url is in the crawl cache.
func (c *Client) Cached(url string) bool {
	return c.cache.Contains(url)
}

// Purge empties the crawl cache.
func (c *Client) Purge() {
	c.cache.Purge()
}

func (c *Client) fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("calling remote reader: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Page{}, fmt.Errorf("call remote reader failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed readerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&parsed); err != nil {
		return Page{}, fmt.Errorf("decoding reader response: %w", err)
	}
	if strings.TrimSpace(parsed.Data.Content) == "" {
		return Page{}, fmt.Errorf("%w: %s", ErrNoContent, url)
	}
	if parsed.Data.URL == "" {
		parsed.Data.URL = url
	}
	return parsed.Data, nil
}
