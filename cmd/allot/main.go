package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/hermes"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "allot",
		Short:        "Fair random assignment by probabilistic serial",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			g.cfg = cfg
			// stdout carries the report; logs go to stderr.
			g.logger = cfg.Logging.NewLogger(os.Stderr)
			slog.SetDefault(g.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file")
	cmd.AddCommand(runCmd(g), serveCmd(g), watchCmd(g))
	return cmd
}

func (g *globals) adapter() *birkhoff.Adapter {
	return birkhoff.NewAdapter(birkhoff.MatchingDecomposer{}, g.cfg.Decomposition.Tolerance)
}

// openHermes connects when a URL is configured. Failure is logged and the
// caller carries on without events.
func (g *globals) openHermes(ctx context.Context) hermes.Client {
	if g.cfg.Hermes.URL == "" {
		return nil
	}
	hc, err := hermes.NewNATSClient(ctx, g.cfg.Hermes.URL, g.logger)
	if err != nil {
		g.logger.Warn("failed to connect to hermes, running without events", "error", err)
		return nil
	}
	g.logger.Info("connected to hermes")
	return hc
}

// openPostgres connects when a database URL is configured.
func (g *globals) openPostgres(ctx context.Context) (store.Store, error) {
	if g.cfg.Database.URL == "" {
		return nil, nil
	}
	db, err := store.NewPostgresStore(ctx, g.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	g.logger.Info("connected to database")
	return db, nil
}
