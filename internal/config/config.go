// Package config provides configuration loading for ragindex.
//
// Configuration is read from an optional YAML file and then overridden by
// environment variables (see LoadWithFile). Each section maps onto one
// engine component: the Qdrant transport, the embedding provider, the chunker,
// the reranker, the remote reader and the blob bucket used for exports.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete ragindex configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Reader     ReaderConfig     `koanf:"reader"`
	Blob       BlobConfig       `koanf:"blob"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Server     ServerConfig     `koanf:"server"`
	Repository RepositoryConfig `koanf:"repository"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// MaxRepositoryFileSize caps files read by the directory indexer.
const MaxRepositoryFileSize = 10 << 20

// DefaultChromemPath is the chromem persistence directory when none is configured.
const DefaultChromemPath = "~/.config/ragindex/vectors"

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	// Backend is "qdrant" or "chromem".
	Backend string `koanf:"backend"`
	// Path is the chromem persistence directory. Empty keeps vectors in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds vector database connection settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	CollectionName string   `koanf:"collection_name"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
	ScrollPageSize int      `koanf:"scroll_page_size"`
}

// EmbeddingsConfig selects and configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider is one of "openai", "tei" or "fastembed".
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
	BatchSize int    `koanf:"batch_size"`
	CacheDir  string `koanf:"cache_dir"`
}

// ChunkerConfig holds passage splitting settings.
type ChunkerConfig struct {
	ChunkSize int `koanf:"chunk_size"`
}

// RerankerConfig holds second-pass relevance scoring settings.
type RerankerConfig struct {
	// Provider is one of "jina", "overlap" or "none".
	Provider           string   `koanf:"provider"`
	BaseURL            string   `koanf:"base_url"`
	Model              string   `koanf:"model"`
	APIKey             Secret   `koanf:"api_key"`
	TopN               int      `koanf:"top_n"`
	RelevanceThreshold float64  `koanf:"relevance_threshold"`
	Timeout            Duration `koanf:"timeout"`
	RequestsPerS       float64  `koanf:"requests_per_second"`
}

// ReaderConfig holds remote page reader settings.
type ReaderConfig struct {
	BaseURL      string   `koanf:"base_url"`
	Token        Secret   `koanf:"token"`
	CacheSize    int      `koanf:"cache_size"`
	Timeout      Duration `koanf:"timeout"`
	RequestsPerS float64  `koanf:"requests_per_second"`
}

// BlobConfig holds object storage settings for serialized exports.
type BlobConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey Secret `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
	// Dir stores exports on local disk when object storage is disabled.
	Dir string `koanf:"dir"`
}

// SecretsConfig controls redaction of credentials from indexed content.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`
	// AllowlistPath points to a gitleaks-style TOML allowlist.
	AllowlistPath string `koanf:"allowlist_path"`
}

// ServerConfig holds the HTTP API listen address.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes bounds request bodies, including imported blobs.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// RepositoryConfig controls directory indexing.
type RepositoryConfig struct {
	// IgnoreFiles are read from the directory root, gitignore syntax.
	IgnoreFiles []string `koanf:"ignore_files"`
	// FallbackExcludes apply when none of IgnoreFiles exist.
	FallbackExcludes []string `koanf:"fallback_excludes"`
	MaxFileSize      int64    `koanf:"max_file_size"`
	// WatchDebounce coalesces bursts of file events in watch mode.
	WatchDebounce Duration `koanf:"watch_debounce"`
}

// LoggingConfig holds the subset of logger settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// RedactFields are extra field keys masked in console output.
	RedactFields []string `koanf:"redact_fields"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Protocol    string `koanf:"protocol"`
	Insecure    bool   `koanf:"insecure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the store backend is unknown
//   - Qdrant port is not between 1 and 65535
//   - the embedding provider or reranker provider is unknown
//   - chunk size or scroll page size is not positive
//   - the relevance threshold is outside [0, 1]
//   - blob storage is enabled without endpoint or bucket
//   - the server port is not between 1 and 65535
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.Qdrant.Port)
	}
	if c.Qdrant.CollectionName == "" {
		return errors.New("qdrant collection name is required")
	}
	if c.Qdrant.ScrollPageSize <= 0 {
		return fmt.Errorf("invalid scroll page size: %d (must be > 0)", c.Qdrant.ScrollPageSize)
	}

	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("invalid embedding dimension: %d", c.Embeddings.Dimension)
	}

	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk size: %d (must be > 0)", c.Chunker.ChunkSize)
	}

	switch c.Reranker.Provider {
	case "jina", "overlap", "none":
	default:
		return fmt.Errorf("unknown reranker provider %q", c.Reranker.Provider)
	}
	if c.Reranker.RelevanceThreshold < 0 || c.Reranker.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance threshold must be between 0 and 1, got %f", c.Reranker.RelevanceThreshold)
	}

	if c.Blob.Enabled {
		if c.Blob.Endpoint == "" {
			return errors.New("blob endpoint is required when blob storage is enabled")
		}
		if c.Blob.Bucket == "" {
			return errors.New("blob bucket is required when blob storage is enabled")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Repository.MaxFileSize < 0 || c.Repository.MaxFileSize > MaxRepositoryFileSize {
		return fmt.Errorf("invalid repository max file size: %d (must be 0-%d)", c.Repository.MaxFileSize, MaxRepositoryFileSize)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "qdrant"
	}
	if cfg.Store.Backend == "chromem" && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultChromemPath
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.CollectionName == "" {
		cfg.Qdrant.CollectionName = "ragindex_passages"
	}
	if cfg.Qdrant.RequestTimeout == 0 {
		cfg.Qdrant.RequestTimeout = Duration(30 * time.Second)
	}
	if cfg.Qdrant.RetryAttempts == 0 {
		cfg.Qdrant.RetryAttempts = 3
	}
	if cfg.Qdrant.ScrollPageSize == 0 {
		cfg.Qdrant.ScrollPageSize = 256
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-large"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 512
	}

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}

	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = "jina"
	}
	if cfg.Reranker.BaseURL == "" {
		cfg.Reranker.BaseURL = "https://api.jina.ai/v1/rerank"
	}
	if cfg.Reranker.Model == "" {
		cfg.Reranker.Model = "jina-reranker-v2-base-multilingual"
	}
	if cfg.Reranker.TopN == 0 {
		cfg.Reranker.TopN = 10
	}
	if cfg.Reranker.RelevanceThreshold == 0 {
		cfg.Reranker.RelevanceThreshold = 0.5
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = Duration(10 * time.Second)
	}
	if cfg.Reranker.RequestsPerS == 0 {
		cfg.Reranker.RequestsPerS = 10
	}

	if cfg.Reader.BaseURL == "" {
		cfg.Reader.BaseURL = "https://r.jina.ai/"
	}
	if cfg.Reader.CacheSize == 0 {
		cfg.Reader.CacheSize = 1000
	}
	if cfg.Reader.Timeout == 0 {
		cfg.Reader.Timeout = Duration(30 * time.Second)
	}
	if cfg.Reader.RequestsPerS == 0 {
		cfg.Reader.RequestsPerS = 5
	}

	if cfg.Blob.Bucket == "" {
		cfg.Blob.Bucket = "ragindex"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 256 << 20
	}

	if cfg.Repository.IgnoreFiles == nil {
		cfg.Repository.IgnoreFiles = []string{".gitignore", ".ragignore"}
	}
	if cfg.Repository.FallbackExcludes == nil {
		cfg.Repository.FallbackExcludes = []string{"node_modules/", "vendor/", "dist/"}
	}
	if cfg.Repository.MaxFileSize == 0 {
		cfg.Repository.MaxFileSize = 1 << 20
	}
	if cfg.Repository.WatchDebounce == 0 {
		cfg.Repository.WatchDebounce = Duration(300 * time.Millisecond)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragindex"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
}
