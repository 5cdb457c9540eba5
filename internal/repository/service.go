package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/ignore"
	"github.com/fyrsmithlabs/ragindex/internal/indexer"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

// defaultSkipDirs are never descended into, regardless of ignore files.
var defaultSkipDirs = map[string]bool{
	".git":        true,
	".svn":        true,
	".hg":         true,
	".idea":       true,
	".vscode":     true,
	".cache":      true,
	"__pycache__": true,
	".venv":       true,
}

var (
	// ErrInvalidPath is returned when the root is missing or not a directory.
	ErrInvalidPath = errors.New("invalid repository path")

	// ErrInvalidOptions is returned for a missing tenant, a bad pattern or
	// an out of range size limit.
	ErrInvalidOptions = errors.New("invalid index options")

	errBinary = errors.New("binary file")
)

// Indexer is the part of the engine the directory indexer drives.
type Indexer interface {
	IndexEntity(ctx context.Context, entity vectorstore.EntityRef, text string, metadata vectorstore.Payload) (indexer.Result, error)
	DeletePointsForEntity(ctx context.Context, entity vectorstore.EntityRef) error
}

// Service indexes directory trees through an Indexer.
type Service struct {
	engine Indexer
	parser *ignore.Parser
	config config.RepositoryConfig
	logger *logging.Logger
}

// NewService creates a directory indexing service.
func NewService(engine Indexer, cfg config.RepositoryConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	return &Service{
		engine: engine,
		parser: ignore.NewParser(cfg.IgnoreFiles, cfg.FallbackExcludes),
		config: cfg,
		logger: logger,
	}
}

// scope is the resolved state shared by a walk and a watch.
type scope struct {
	root    string
	opts    IndexOptions
	ignored *ignore.Matcher
}

func (s *Service) resolve(root string, opts IndexOptions) (*scope, error) {
	root, err := validatePath(root)
	if err != nil {
		return nil, err
	}
	if !logging.IsValidID(opts.TenantID) {
		return nil, fmt.Errorf("%w: tenant id %q", ErrInvalidOptions, opts.TenantID)
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = s.config.MaxFileSize
	}
	if opts.MaxFileSize < 0 || opts.MaxFileSize > config.MaxRepositoryFileSize {
		return nil, fmt.Errorf("%w: max file size %d out of range", ErrInvalidOptions, opts.MaxFileSize)
	}
	for _, p := range opts.IncludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: include pattern %q", ErrInvalidOptions, p)
		}
	}

	patterns, err := s.parser.ParseDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading ignore files: %w", err)
	}
	ignored, err := ignore.Compile(append(append([]string(nil), patterns...), opts.ExcludePatterns...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &scope{root: root, opts: opts, ignored: ignored}, nil
}

// IndexRepository indexes every eligible file under path. A failing file
// aborts the walk; files indexed before it stay indexed.
func (s *Service) IndexRepository(ctx context.Context, root string, opts IndexOptions) (*IndexResult, error) {
	sc, err := s.resolve(root, opts)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithTenantID(ctx, sc.opts.TenantID)

	res := &IndexResult{Path: sc.root}
	err = filepath.WalkDir(sc.root, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sc.root, filePath)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		if d.IsDir() {
			if rel != "." && sc.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !sc.includes(rel, info.Size()) {
			res.FilesSkipped++
			return nil
		}

		r, err := s.indexFile(ctx, sc, rel)
		if errors.Is(err, errBinary) {
			res.FilesSkipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("indexing %s: %w", rel, err)
		}
		res.add(r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking file tree: %w", err)
	}

	res.IndexedAt = time.Now()
	s.logger.Info(ctx, "indexed directory",
		zap.String("path", sc.root),
		zap.Int("files", res.FilesIndexed),
		zap.Int("skipped", res.FilesSkipped),
		zap.Int("embedded", res.Embedded),
		zap.Int("reused", res.Reused),
	)
	return res, nil
}

// indexFile indexes one file as a document keyed by its relative path.
func (s *Service) indexFile(ctx context.Context, sc *scope, rel string) (indexer.Result, error) {
	abs := filepath.Join(sc.root, rel)
	content, err := os.ReadFile(abs)
	if err != nil {
		return indexer.Result{}, fmt.Errorf("reading file: %w", err)
	}
	if !utf8.Valid(content) {
		return indexer.Result{}, errBinary
	}

	metadata := vectorstore.Payload{
		vectorstore.KeyTitle: filepath.ToSlash(rel),
		vectorstore.KeyURL:   "file://" + filepath.ToSlash(abs),
	}
	if sc.opts.ProjectID != "" {
		metadata[vectorstore.KeyProjectID] = sc.opts.ProjectID
	}
	return s.engine.IndexEntity(ctx, sc.entity(rel), string(content), metadata)
}

func (sc *scope) entity(rel string) vectorstore.EntityRef {
	return vectorstore.Document(sc.opts.TenantID, path.Clean(filepath.ToSlash(rel)))
}

func (sc *scope) skipDir(rel string) bool {
	return defaultSkipDirs[filepath.Base(rel)] || sc.ignored.Match(rel, true)
}

// includes applies the size limit, the ignore rules and the include
// patterns, in that order.
func (sc *scope) includes(rel string, size int64) bool {
	if size > sc.opts.MaxFileSize {
		return false
	}
	if sc.ignored.Match(rel, false) {
		return false
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if defaultSkipDirs[filepath.Base(dir)] {
			return false
		}
	}
	if len(sc.opts.IncludePatterns) == 0 {
		return true
	}

	slashed := filepath.ToSlash(rel)
	base := path.Base(slashed)
	for _, pattern := range sc.opts.IncludePatterns {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func validatePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: path does not exist: %s", ErrInvalidPath, abs)
		}
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: path must be a directory: %s", ErrInvalidPath, abs)
	}
	return abs, nil
}
