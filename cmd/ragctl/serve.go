package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	raghttp "github.com/fyrsmithlabs/ragindex/internal/http"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Long: `Serve exposes indexing, search, duplication and serialization as a JSON
API under /api/v1, with /health and Prometheus /metrics. The server stops
gracefully on SIGINT or SIGTERM.

Examples:
  ragctl serve
  ragctl serve --host 0.0.0.0 --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				cfg := raghttp.ConfigFromSettings(s.config.Server)
				if cmd.Flags().Changed("host") {
					cfg.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}

				srv, err := raghttp.NewServer(s.Engine, s.logger, cfg)
				if err != nil {
					return err
				}
				s.logger.Info(ctx, "serving", zap.String("addr", cfg.Addr()))
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
