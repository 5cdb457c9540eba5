// Package rag wires the indexing and retrieval components into one engine
// built from a config.Config.
package rag

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/blobstore"
	"github.com/fyrsmithlabs/ragindex/internal/chunker"
	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/embeddings"
	"github.com/fyrsmithlabs/ragindex/internal/indexer"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/migration"
	"github.com/fyrsmithlabs/ragindex/internal/qdrant"
	"github.com/fyrsmithlabs/ragindex/internal/reader"
	"github.com/fyrsmithlabs/ragindex/internal/reranker"
	"github.com/fyrsmithlabs/ragindex/internal/retrieval"
	"github.com/fyrsmithlabs/ragindex/internal/secrets"
	"github.com/fyrsmithlabs/ragindex/internal/serializer"
	"github.com/fyrsmithlabs/ragindex/internal/telemetry"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// ErrBlobDisabled is returned by Export and Import when no bucket is configured.
var ErrBlobDisabled = errors.New("blob storage is not configured")

// Options overrides components the engine would otherwise build from config.
type Options struct {
	// Store replaces the configured backend. It is still wrapped in a TenantGuard.
	Store vectorstore.Store
	// Embedder replaces the configured embedding provider.
	Embedder embeddings.Provider
	// Splitter replaces the configured chunker.
	Splitter indexer.Splitter
	// Bucket replaces the bucket built from the blob section.
	Bucket *blobstore.Bucket
	Logger *logging.Logger
	// Telemetry receives indexer spans and metrics; nil uses the otel globals.
	Telemetry *telemetry.Telemetry
}

// Engine exposes every indexing and retrieval operation.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger

	provider embeddings.Provider
	catalog  *embeddings.Catalog
	store    vectorstore.Store

	indexer    *indexer.Indexer
	retriever  *retrieval.Retriever
	reranker   *reranker.Reranker
	migrator   *migration.Service
	serializer *serializer.Serializer
	exporter   *serializer.Exporter
	reader     *reader.Client
	redactor   *secrets.Redactor

	closers []func() error
}

// New builds an Engine. On error every component built so far is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Engine, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{cfg: cfg, logger: logger.Named("rag")}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	e.provider = opts.Embedder
	if e.provider == nil {
		if e.provider, err = embeddings.NewProvider(cfg.Embeddings, logger.Zap()); err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		e.closers = append(e.closers, e.provider.Close)
	}
	e.catalog = embeddings.NewCatalog(modelLister(e.provider), 0)

	store := opts.Store
	if store == nil {
		if store, err = e.newStore(ctx); err != nil {
			return nil, err
		}
	}
	e.store = vectorstore.NewTenantGuard(store, logger)

	splitter := opts.Splitter
	if splitter == nil {
		splitter = chunker.FromSettings(cfg.Chunker)
	}
	pageSize := cfg.Qdrant.ScrollPageSize

	if e.indexer, err = indexer.New(e.store, e.provider, splitter, logger,
		indexer.WithScrollPageSize(pageSize), indexer.WithTelemetry(opts.Telemetry)); err != nil {
		return nil, err
	}
	if e.retriever, err = retrieval.New(e.store, e.provider, logger); err != nil {
		return nil, err
	}

	model, err := reranker.NewModel(cfg.Reranker)
	if err != nil {
		return nil, err
	}
	if e.reranker, err = reranker.New(model, logger); err != nil {
		return nil, err
	}

	if e.migrator, err = migration.NewService(e.store, logger, pageSize); err != nil {
		return nil, err
	}
	if e.serializer, err = serializer.New(e.store, logger, pageSize); err != nil {
		return nil, err
	}

	bucket := opts.Bucket
	if bucket == nil {
		if bucket, err = blobstore.FromSettings(cfg.Blob, logger); err != nil {
			return nil, fmt.Errorf("blob storage: %w", err)
		}
	}
	if bucket != nil {
		if err := bucket.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		if e.exporter, err = serializer.NewExporter(e.serializer, bucket, logger); err != nil {
			return nil, err
		}
	}

	if e.reader, err = reader.New(reader.ConfigFromSettings(cfg.Reader), logger); err != nil {
		return nil, err
	}

	if cfg.Secrets.Enabled {
		allowlist, err := secrets.LoadAllowlist(cfg.Secrets.AllowlistPath)
		if err != nil {
			return nil, err
		}
		if e.redactor, err = secrets.NewRedactor(allowlist); err != nil {
			return nil, err
		}
	}

	e.logger.Info(ctx, "engine ready",
		zap.String("embedding_model", e.provider.Model()),
		zap.Int("dimension", e.provider.Dimension()),
		zap.String("reranker", model.Name()),
		zap.Bool("blob", e.exporter != nil),
		zap.Bool("redact_secrets", e.redactor != nil),
		logging.Secret("qdrant.api_key", e.cfg.Qdrant.APIKey),
		logging.Secret("embeddings.api_key", e.cfg.Embeddings.APIKey),
		logging.Secret("reranker.api_key", e.cfg.Reranker.APIKey),
		logging.Secret("reader.token", e.cfg.Reader.Token),
		logging.Secret("blob.access_key", config.Secret(e.cfg.Blob.AccessKey)),
		logging.Secret("blob.secret_key", e.cfg.Blob.SecretKey),
	)
	return e, nil
}

// newStore builds the backend named by the store section.
func (e *Engine) newStore(ctx context.Context) (vectorstore.Store, error) {
	switch backend := e.cfg.Store.Backend; backend {
	case "chromem":
		store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       e.cfg.Store.Path,
			Compress:   e.cfg.Store.Compress,
			Collection: e.cfg.Qdrant.CollectionName,
			Dimension:  e.provider.Dimension(),
		}, e.logger)
		if err != nil {
			return nil, fmt.Errorf("chromem store: %w", err)
		}
		return store, nil
	case "qdrant", "":
		client, err := qdrant.NewClient(qdrant.ConfigFromSettings(e.cfg.Qdrant), e.logger)
		if err != nil {
			return nil, fmt.Errorf("qdrant client: %w", err)
		}
		e.closers = append(e.closers, client.Close)
		if err := client.EnsureCollection(ctx, e.provider.Dimension()); err != nil {
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// IndexEntity converges the stored points of entity to text. When secret
// redaction is enabled the text is redacted first.
func (e *Engine) IndexEntity(ctx context.Context, entity vectorstore.EntityRef, text string, metadata vectorstore.Payload) (indexer.Result, error) {
	text, redacted := e.redact(ctx, entity, text)
	res, err := e.indexer.IndexEntity(ctx, entity, text, metadata)
	res.Redacted = redacted
	return res, err
}

func (e *Engine) redact(ctx context.Context, entity vectorstore.EntityRef, text string) (string, int) {
	if e.redactor == nil {
		return text, 0
	}
	text, summary := e.redactor.Redact(text)
	if summary.Total > 0 {
		e.logger.Info(ctx, "redacted secrets",
			zap.String("tenant_id", entity.TenantID),
			zap.String("entity", entity.String()),
			zap.Int("count", summary.Total),
			zap.Any("rules", summary.Rules),
		)
	}
	return text, summary.Total
}

// IndexURL crawls url through the reader and indexes the page content
// under entity. The page url and title are added to metadata.
func (e *Engine) IndexURL(ctx context.Context, entity vectorstore.EntityRef, url string, metadata vectorstore.Payload) (indexer.Result, error) {
	if err := entity.Validate(); err != nil {
		return indexer.Result{}, err
	}
	page, err := e.reader.Crawl(ctx, url)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("crawl %s: %w", url, err)
	}

	meta := metadata.Clone()
	meta[vectorstore.KeyURL] = page.URL
	if page.Title != "" {
		meta[vectorstore.KeyTitle] = page.Title
	}
	return e.IndexEntity(ctx, entity, page.Content, meta)
}

// Retrieve returns the chunks most similar to the query.
func (e *Engine) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Hit, error) {
	return e.retriever.Retrieve(ctx, q)
}

// Rerank rescores results against query.
func (e *Engine) Rerank(ctx context.Context, query string, results []retrieval.Hit, topN int, threshold float64) []reranker.ScoredResult {
	return e.reranker.Rerank(ctx, query, results, topN, threshold)
}

// Search retrieves and then reranks with the configured top n and threshold.
func (e *Engine) Search(ctx context.Context, q retrieval.Query) ([]reranker.ScoredResult, error) {
	hits, err := e.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	return e.reranker.Rerank(ctx, q.Text, hits, e.cfg.Reranker.TopN, e.cfg.Reranker.RelevanceThreshold), nil
}

// DuplicateEntity copies every point of src into dst.
func (e *Engine) DuplicateEntity(ctx context.Context, src, dst vectorstore.EntityRef) (migration.Result, error) {
	return e.migrator.DuplicateEntity(ctx, src, dst)
}

// Serialize encodes the points of entity as a portable blob.
func (e *Engine) Serialize(ctx context.Context, entity vectorstore.EntityRef) ([]byte, error) {
	return e.serializer.Serialize(ctx, entity)
}

// Deserialize writes the points of blob into target.
func (e *Engine) Deserialize(ctx context.Context, target vectorstore.EntityRef, blob []byte) (serializer.Result, error) {
	return e.serializer.Deserialize(ctx, target, blob)
}

// Export serializes entity into the configured bucket and returns its key.
func (e *Engine) Export(ctx context.Context, entity vectorstore.EntityRef) (string, error) {
	if e.exporter == nil {
		return "", ErrBlobDisabled
	}
	return e.exporter.Export(ctx, entity)
}

// Import deserializes the object at key into target.
func (e *Engine) Import(ctx context.Context, key string, target vectorstore.EntityRef) (serializer.Result, error) {
	if e.exporter == nil {
		return serializer.Result{}, ErrBlobDisabled
	}
	return e.exporter.Import(ctx, key, target)
}

// DeletePointsForEntity removes every point of entity.
func (e *Engine) DeletePointsForEntity(ctx context.Context, entity vectorstore.EntityRef) error {
	return e.indexer.DeleteEntity(ctx, entity)
}

// UpdatePayload merges patch into the points of the given entities.
func (e *Engine) UpdatePayload(ctx context.Context, tenantID string, nodeType vectorstore.NodeType, entityIDs []string, patch vectorstore.Payload) error {
	return e.indexer.UpdatePayload(ctx, tenantID, nodeType, entityIDs, patch)
}

// Models lists the embedding models the configured backend serves.
func (e *Engine) Models(ctx context.Context) ([]embeddings.ModelInfo, error) {
	return e.catalog.Models(ctx)
}

// Close releases the provider and store connections the engine opened.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

type staticLister struct {
	info embeddings.ModelInfo
}

func (s staticLister) ListModels(context.Context) ([]embeddings.ModelInfo, error) {
	return []embeddings.ModelInfo{s.info}, nil
}

func modelLister(p embeddings.Provider) embeddings.ModelLister {
	if l, ok := p.(embeddings.ModelLister); ok {
		return l
	}
	return staticLister{info: embeddings.ModelInfo{Name: p.Model(), Dimension: p.Dimension()}}
}
