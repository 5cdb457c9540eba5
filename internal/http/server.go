// Package http serves the indexing engine over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/blobstore"
	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/embeddings"
	"github.com/fyrsmithlabs/ragindex/internal/indexer"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/migration"
	"github.com/fyrsmithlabs/ragindex/internal/rag"
	"github.com/fyrsmithlabs/ragindex/internal/reader"
	"github.com/fyrsmithlabs/ragindex/internal/reranker"
	"github.com/fyrsmithlabs/ragindex/internal/retrieval"
	"github.com/fyrsmithlabs/ragindex/internal/serializer"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// MIMEAvro is the content type of serialized entity blobs.
const MIMEAvro = "application/avro"

// Engine is the subset of *rag.Engine served over HTTP.
type Engine interface {
	IndexEntity(ctx context.Context, entity vectorstore.EntityRef, text string, metadata vectorstore.Payload) (indexer.Result, error)
	IndexURL(ctx context.Context, entity vectorstore.EntityRef, url string, metadata vectorstore.Payload) (indexer.Result, error)
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Hit, error)
	Search(ctx context.Context, q retrieval.Query) ([]reranker.ScoredResult, error)
	DuplicateEntity(ctx context.Context, src, dst vectorstore.EntityRef) (migration.Result, error)
	Serialize(ctx context.Context, entity vectorstore.EntityRef) ([]byte, error)
	Deserialize(ctx context.Context, target vectorstore.EntityRef, blob []byte) (serializer.Result, error)
	Export(ctx context.Context, entity vectorstore.EntityRef) (string, error)
	Import(ctx context.Context, key string, target vectorstore.EntityRef) (serializer.Result, error)
	DeletePointsForEntity(ctx context.Context, entity vectorstore.EntityRef) error
	UpdatePayload(ctx context.Context, tenantID string, nodeType vectorstore.NodeType, entityIDs []string, patch vectorstore.Payload) error
	Models(ctx context.Context) ([]embeddings.ModelInfo, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// ConfigFromSettings converts the server section of the config file.
func ConfigFromSettings(s config.ServerConfig) *Config {
	return &Config{
		Host:            s.Host,
		Port:            s.Port,
		ShutdownTimeout: s.ShutdownTimeout.Duration(),
		MaxBodyBytes:    s.MaxBodyBytes,
	}
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	engine Engine
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(engine Engine, logger *logging.Logger, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = ConfigFromSettings(config.Default().Server)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger.Zap()).MetricsMiddleware())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxBodyBytes)))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.IsValidID(id) {
				ctx = logging.WithRequestID(ctx, id)
				c.SetRequest(c.Request().WithContext(ctx))
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		engine: engine,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/models", s.handleModels)

	tenant := v1.Group("/tenants/:tenant")
	tenant.POST("/search", s.handleSearch)
	tenant.POST("/payload", s.handleUpdatePayload)

	entity := tenant.Group("/entities/:type/:id")
	entity.PUT("", s.handleIndex)
	entity.DELETE("", s.handleDelete)
	entity.POST("/duplicate", s.handleDuplicate)
	entity.GET("/avro", s.handleSerialize)
	entity.PUT("/avro", s.handleDeserialize)
	entity.POST("/export", s.handleExport)
	entity.POST("/import", s.handleImport)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Run serves until ctx is canceled, then shuts down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleModels(c echo.Context) error {
	models, err := s.engine.Models(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, models)
}

// IndexRequest is the request body for PUT .../entities/:type/:id.
// Exactly one of Text or URL is set.
type IndexRequest struct {
	Text     string         `json:"text"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleIndex(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if (req.Text == "") == (req.URL == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of text or url is required")
	}

	ctx := c.Request().Context()
	var res indexer.Result
	if req.URL != "" {
		res, err = s.engine.IndexURL(ctx, ref, req.URL, req.Metadata)
	} else {
		res, err = s.engine.IndexEntity(ctx, ref, req.Text, req.Metadata)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.engine.DeletePointsForEntity(c.Request().Context(), ref); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DuplicateRequest names the target entity. TenantID defaults to the
// source tenant.
type DuplicateRequest struct {
	TenantID string `json:"tenantId"`
	NodeType string `json:"nodeType"`
	ID       string `json:"id"`
}

func (s *Server) handleDuplicate(c echo.Context) error {
	src, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req DuplicateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dst := vectorstore.EntityRef{TenantID: req.TenantID, NodeType: vectorstore.NodeType(req.NodeType), ID: req.ID}
	if dst.TenantID == "" {
		dst.TenantID = src.TenantID
	}
	if dst.NodeType == "" {
		dst.NodeType = src.NodeType
	}

	res, err := s.engine.DuplicateEntity(c.Request().Context(), src, dst)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSerialize(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	blob, err := s.engine.Serialize(c.Request().Context(), ref)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Blob(http.StatusOK, MIMEAvro, blob)
}

func (s *Server) handleDeserialize(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	blob, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	res, err := s.engine.Deserialize(c.Request().Context(), ref, blob)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ExportResponse carries the bucket key of an exported entity.
type ExportResponse struct {
	Key string `json:"key"`
}

func (s *Server) handleExport(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	key, err := s.engine.Export(c.Request().Context(), ref)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ExportResponse{Key: key})
}

// ImportRequest names the bucket object to import.
type ImportRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleImport(c echo.Context) error {
	ref, err := entityRef(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req ImportRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	res, err := s.engine.Import(c.Request().Context(), req.Key, ref)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SearchRequest is the request body for POST .../search. Rerank defaults
// to true.
type SearchRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit"`
	Rerank      *bool    `json:"rerank"`
	NodeTypes   []string `json:"nodeTypes"`
	URLs        []string `json:"urls"`
	DocIDs      []string `json:"docIds"`
	ResourceIDs []string `json:"resourceIds"`
	ProjectIDs  []string `json:"projectIds"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	q := retrieval.Query{
		TenantID: c.Param("tenant"),
		Text:     req.Query,
		Limit:    req.Limit,
		Filter: retrieval.Filter{
			URLs:        req.URLs,
			DocIDs:      req.DocIDs,
			ResourceIDs: req.ResourceIDs,
			ProjectIDs:  req.ProjectIDs,
		},
	}
	for _, t := range req.NodeTypes {
		q.Filter.NodeTypes = append(q.Filter.NodeTypes, vectorstore.NodeType(t))
	}

	ctx := logging.WithTenantID(c.Request().Context(), q.TenantID)
	if req.Rerank != nil && !*req.Rerank {
		hits, err := s.engine.Retrieve(ctx, q)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, hits)
	}
	scored, err := s.engine.Search(ctx, q)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, scored)
}

// UpdatePayloadRequest is the request body for POST .../payload.
type UpdatePayloadRequest struct {
	NodeType string         `json:"nodeType"`
	IDs      []string       `json:"ids"`
	Payload  map[string]any `json:"payload"`
}

func (s *Server) handleUpdatePayload(c echo.Context) error {
	var req UpdatePayloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Payload) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "payload is required")
	}
	if req.NodeType == "" {
		req.NodeType = string(vectorstore.NodeDocument)
	}
	err := s.engine.UpdatePayload(c.Request().Context(), c.Param("tenant"), vectorstore.NodeType(req.NodeType), req.IDs, req.Payload)
	if err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// entityRef reads and validates the :tenant, :type and :id parameters.
func entityRef(c echo.Context) (vectorstore.EntityRef, error) {
	ref := vectorstore.EntityRef{
		TenantID: c.Param("tenant"),
		NodeType: vectorstore.NodeType(c.Param("type")),
		ID:       c.Param("id"),
	}
	if err := ref.Validate(); err != nil {
		return vectorstore.EntityRef{}, err
	}
	ctx := logging.WithTenantID(c.Request().Context(), ref.TenantID)
	c.SetRequest(c.Request().WithContext(logging.WithEntity(ctx, ref.ID, string(ref.NodeType))))
	return ref, nil
}

// fail maps engine errors to HTTP status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vectorstore.ErrInvalidEntity),
		errors.Is(err, vectorstore.ErrMissingTenant),
		errors.Is(err, vectorstore.ErrInvalidFilter),
		errors.Is(err, vectorstore.ErrInvalidPoint),
		errors.Is(err, indexer.ErrReservedKey),
		errors.Is(err, serializer.ErrEmptyBlob),
		errors.Is(err, serializer.ErrMalformedBlob),
		errors.Is(err, migration.ErrSameEntity),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, reader.ErrEmptyURL):
		return http.StatusBadRequest
	case errors.Is(err, blobstore.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrBlobDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, reader.ErrNoContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
