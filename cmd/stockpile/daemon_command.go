package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockpile/internal/daemon"
	"stockpile/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background service in the foreground",
		Long: "Run periodic detection passes, the enrichment worker, and the HTTP API until\n" +
			"interrupted. Only one daemon may run per data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := daemon.New(daemon.Options{
				Config:    rt.cfg,
				Catalog:   rt.catalog,
				Installs:  rt.installs,
				Refresher: rt.refresher,
				Enricher:  rt.enricher,
				Providers: rt.providers.Statuses,
				Logger:    rt.logger,
			})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			if err := d.Start(signalCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			defer d.Stop()

			done := make(chan error, 1)
			go func() { done <- d.Wait() }()
			select {
			case <-signalCtx.Done():
				rt.logger.Info("stockpile daemon shutting down")
			case err := <-done:
				if err != nil && !errors.Is(err, signalCtx.Err()) {
					logging.ErrorWithContext(rt.logger, "daemon stopped unexpectedly", "daemon_failed", logging.Error(err))
					return err
				}
			}
			return nil
		},
	}
}
