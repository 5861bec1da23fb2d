package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/transcriptrag/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the ingest, query and ask operations over HTTP, plus /health and
Prometheus metrics on /metrics. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, flags, needs{service: true, fetcher: true, llm: "optional"}, func(a *app) error {
				cfg := a.cfg.Server
				if host != "" {
					cfg.Host = host
				}
				if port != 0 {
					cfg.Port = port
				}
				if err := a.svc.EnsureCollections(ctx); err != nil {
					return err
				}

				srv, err := httpserver.NewServer(a.svc, a.store, a.logger.Underlying().Named("http"), &httpserver.Config{
					Host:           cfg.Host,
					Port:           cfg.Port,
					RequestTimeout: cfg.RequestTimeout.Duration(),
					Version:        version,
				})
				if err != nil {
					return err
				}

				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start() }()
				a.logger.Info(ctx, "server configured",
					zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Host, cfg.Port)),
					zap.String("metrics_endpoint", "/metrics"),
				)

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout.Duration())
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return <-errCh
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
