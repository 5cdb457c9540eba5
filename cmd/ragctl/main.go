// Package main implements ragctl, the command-line front end of the
// ragindex engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/config"
	"github.com/fyrsmithlabs/ragindex/internal/logging"
	"github.com/fyrsmithlabs/ragindex/internal/rag"
	"github.com/fyrsmithlabs/ragindex/internal/telemetry"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

var version = "dev"

// openEngine builds the engine for a command. Tests replace it.
var openEngine = rag.New

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	store      string
	tenant     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Index, search and move entity vectors",
		Long: `ragctl drives the ragindex engine: it chunks and embeds documents and
resources, answers tenant-scoped similarity queries, and copies or exports
the vectors of an entity.

Configuration is read from ~/.config/ragindex/config.yaml (or --config) and
overridden by environment variables such as QDRANT_HOST.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ragindex/config.yaml)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "vector store backend: qdrant, chromem or memory (default from config)")
	root.PersistentFlags().StringVarP(&opts.tenant, "tenant", "t", "", "tenant id")

	root.AddCommand(
		newIndexCmd(opts),
		newIndexDirCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newDuplicateCmd(opts),
		newUpdatePayloadCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newModelsCmd(opts),
		newServeCmd(opts),
	)
	addPlatformCommands(root)
	return root
}

// session is one command's engine with its logger and telemetry.
type session struct {
	*rag.Engine
	config    *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

func (o *globalOptions) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	logCfg.Output.Stderr = true

	// Telemetry reports its own failures on the console-only logger, so
	// exporter errors never loop back into the OTLP log pipeline.
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), logger.Named("bootstrap").Zap())
	if err != nil {
		return nil, err
	}
	if lp := tel.LoggerProvider(); lp != nil {
		logCfg.Output.OTEL = true
		if logger, err = logging.NewLogger(logCfg, lp); err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	ropts := rag.Options{Logger: logger, Telemetry: tel}
	switch o.store {
	case "":
	case "qdrant":
		cfg.Store.Backend = o.store
	case "chromem":
		cfg.Store.Backend = o.store
		if cfg.Store.Path == "" {
			cfg.Store.Path = config.DefaultChromemPath
		}
	case "memory":
		ropts.Store = vectorstore.NewMemoryStore()
	default:
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("unknown store %q (want qdrant, chromem or memory)", o.store)
	}

	engine, err := openEngine(ctx, cfg, ropts)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &session{Engine: engine, config: cfg, logger: logger, telemetry: tel}, nil
}

func (s *session) Close(ctx context.Context) {
	if err := s.Engine.Close(); err != nil {
		s.logger.Warn(ctx, "closing engine", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// run opens a session, calls fn and closes the session.
func (o *globalOptions) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	return fn(ctx, s)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// entityFlags binds --id and --type.
type entityFlags struct {
	id       string
	nodeType string
}

func (f *entityFlags) bind(cmd *cobra.Command, prefix, what string) {
	cmd.Flags().StringVar(&f.id, prefix+"id", "", what+" entity id")
	cmd.Flags().StringVar(&f.nodeType, prefix+"type", string(vectorstore.NodeDocument), what+" entity type: document or resource")
}

func (f *entityFlags) ref(tenantID string) (vectorstore.EntityRef, error) {
	e := vectorstore.EntityRef{TenantID: tenantID, NodeType: vectorstore.NodeType(f.nodeType), ID: f.id}
	if err := e.Validate(); err != nil {
		return vectorstore.EntityRef{}, err
	}
	return e, nil
}

func toPayload(m map[string]string) vectorstore.Payload {
	p := make(vectorstore.Payload, len(m))
	for k, v := range m {
		p[k] = v
	}
	return p
}
