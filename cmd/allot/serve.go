package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Allot/internal/api"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/pipeline"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

func serveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve allocations over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			logger := g.logger

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Database, falling back to in-process history
			var runs store.Store
			db, err := g.openPostgres(ctx)
			switch {
			case err != nil:
				return fmt.Errorf("connect to database: %w", err)
			case db != nil:
				runs = db
			default:
				logger.Info("no database configured, keeping run history in memory")
				runs = store.NewMemoryStore()
			}
			defer runs.Close()

			// Hermes (optional)
			hc := g.openHermes(ctx)
			if hc != nil {
				defer hc.Close()
			}

			rec := metrics.New(true)
			p := pipeline.New(g.adapter(), runs, hc, rec, logger)

			apiServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: api.NewRouter(p, runs, cfg, logger),
			}
			metricsServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
				Handler: api.NewMetricsRouter(rec),
			}

			go func() {
				logger.Info("API server starting", "port", cfg.Server.Port)
				if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
					logger.Error("API server error", "error", err)
				}
			}()

			go func() {
				logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
				if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
					logger.Error("metrics server error", "error", err)
				}
			}()

			// Graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info("shutting down...")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			_ = apiServer.Shutdown(shutdownCtx)
			_ = metricsServer.Shutdown(shutdownCtx)

			logger.Info("shutdown complete")
			return nil
		},
	}
}
