package qdrant

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/qdrant/go-client/qdrant"
)

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// CollectionName is the single collection holding every tenant's points.
	// Default: "ragindex_passages"
	CollectionName string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, large enough for a full entity upsert.
	MaxMessageSize int

	// DialTimeout bounds the initial health check.
	// Default: 5 seconds
	DialTimeout time.Duration

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient RPC failures.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the first retry delay; it doubles on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// Distance is the distance metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		CollectionName: "ragindex_passages",
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   time.Second,
		Distance:       qdrant.Distance_Cosine,
	}
}

// ConfigFromSettings maps the qdrant section of the application config.
func ConfigFromSettings(s config.QdrantConfig) *ClientConfig {
	cfg := &ClientConfig{
		Host:           s.Host,
		Port:           s.Port,
		UseTLS:         s.UseTLS,
		APIKey:         s.APIKey.Value(),
		CollectionName: s.CollectionName,
		RequestTimeout: s.RequestTimeout.Duration(),
		RetryAttempts:  s.RetryAttempts,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.CollectionName == "" {
		c.CollectionName = defaults.CollectionName
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = defaults.Distance
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("invalid retry attempts: %d (must be >= 0)", c.RetryAttempts)
	}
	return nil
}
