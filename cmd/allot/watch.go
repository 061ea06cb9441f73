package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Allot/internal/hermes"
)

func watchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print run events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.cfg.Hermes.URL == "" {
				return errors.New("hermes.url is not configured")
			}
			hc, err := hermes.NewNATSClient(cmd.Context(), g.cfg.Hermes.URL, g.logger)
			if err != nil {
				return err
			}
			defer hc.Close()

			out := cmd.OutOrStdout()
			if err := hc.Subscribe(hermes.SubjectRunAll, func(subject string, data []byte) {
				fmt.Fprintf(out, "%s %s\n", subject, data)
			}); err != nil {
				return err
			}
			g.logger.Info("watching run events", "subject", hermes.SubjectRunAll)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			return nil
		},
	}
}
