package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/pipeline"
	"github.com/MikeSquared-Agency/Allot/internal/report"
)

func runCmd(g *globals) *cobra.Command {
	var (
		prefs  string
		items  string
		k      int
		sample bool
		seed   int64
		format string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Compute an allocation from a preferences file and an items file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("prefs") {
				cfg.Input.Preferences = prefs
			}
			if cmd.Flags().Changed("items") {
				cfg.Input.Items = items
			}
			if cmd.Flags().Changed("k") {
				cfg.Selection.K = k
			}
			if sample {
				cfg.Selection.Mode = config.ModeSample
			}
			if cmd.Flags().Changed("seed") {
				cfg.Selection.Seed = seed
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format %q (expected text|json)", format)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := g.openPostgres(ctx)
			if err != nil {
				g.logger.Warn("failed to connect to database, run will not be stored", "error", err)
			}
			if db != nil {
				defer db.Close()
			}
			hc := g.openHermes(ctx)
			if hc != nil {
				defer hc.Close()
			}

			rec := metrics.New(false)
			p := pipeline.New(g.adapter(), db, hc, rec, g.logger)

			res, runErr := p.RunFiles(ctx, cfg.Input.Preferences, cfg.Input.Items, pipeline.Options{
				Mode: cfg.Selection.Mode,
				K:    cfg.Selection.K,
				Seed: cfg.Selection.Seed,
			})

			if cfg.Metrics.Textfile != "" {
				if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
					g.logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			return printResult(cmd.OutOrStdout(), res, format)
		},
	}

	c.Flags().StringVar(&prefs, "prefs", "", "preferences CSV: name,score_1,...,score_N per line (default from config)")
	c.Flags().StringVar(&items, "items", "", "item names, one per line (default from config)")
	c.Flags().IntVarP(&k, "k", "k", 5, "number of most likely allocations to list")
	c.Flags().BoolVar(&sample, "sample", false, "draw one allocation at random instead of listing the top k")
	c.Flags().Int64Var(&seed, "seed", 0, "random seed for --sample (0 picks one and logs it)")
	c.Flags().StringVar(&format, "format", "text", "Output format: text|json")
	return c
}

func printResult(w io.Writer, res *pipeline.Result, format string) error {
	if format == "json" {
		return report.WriteJSON(w, res)
	}
	if res.Mode == config.ModeSample {
		return report.WriteSample(w, res.Selected[0])
	}
	return report.WriteTopK(w, res.K, res.Selected)
}
