package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockpile/internal/api"
	"stockpile/internal/enrichment"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var force bool
	var local bool

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch metadata for entries that are not enriched yet",
		Long: "Run one enrichment batch. --force uses the larger on-demand batch size.\n" +
			"A running daemon queues the batch on its worker; otherwise the batch runs here and waits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if client, ok := ctx.daemonClient(runCtx, local); ok {
				resp, err := client.Enrich(runCtx, force)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s enrichment batch on the daemon.\n", resp.Trigger)
				return nil
			}

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if !rt.cfg.Enrichment.Enabled {
				return errors.New("enrichment is disabled in config")
			}

			trigger := enrichment.TriggerBackground
			if force {
				trigger = enrichment.TriggerForce
			}
			result, err := rt.enricher.RunBatch(runCtx, trigger)
			if err != nil {
				return fmt.Errorf("enrichment batch: %w", err)
			}
			batch := api.FromBatchResult(result)
			if jsonOut {
				return writeJSON(cmd, batch)
			}
			renderBatch(cmd.OutOrStdout(), batch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Use the on-demand batch size")
	cmd.Flags().BoolVar(&local, "local", false, "Run in this process even when a daemon is reachable")
	return cmd
}
