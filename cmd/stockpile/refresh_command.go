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
	"stockpile/internal/refresh"
)

type refreshOutput struct {
	Source     string              `json:"source"`
	Queued     bool                `json:"queued,omitempty"`
	Refresh    *api.RefreshSummary `json:"refresh,omitempty"`
	Enrichment *api.BatchSummary   `json:"enrichment,omitempty"`
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var enrich bool
	var local bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run a detection pass and update the inventory",
		Long: "Run every configured detector, merge duplicates, and persist the result.\n" +
			"When a daemon is running the pass runs there; otherwise it runs in this process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := refreshOutput{Source: "local"}
			if client, ok := ctx.daemonClient(runCtx, local); ok {
				resp, err := client.Refresh(runCtx, true)
				if err != nil {
					return err
				}
				out.Source = "daemon"
				out.Queued = resp.Queued
				out.Refresh = resp.Summary
				if enrich {
					if _, err := client.Enrich(runCtx, false); err != nil {
						return err
					}
				}
				return writeRefreshOutput(cmd, out, jsonOut)
			}

			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			summary, err := rt.refresher.Refresh(runCtx)
			if errors.Is(err, refresh.ErrLocked) {
				return fmt.Errorf("%w; wait for the other process or stop the daemon", err)
			}
			if err != nil {
				return err
			}
			dto := api.FromRefreshSummary(summary)
			out.Refresh = &dto

			if enrich {
				if !rt.cfg.Enrichment.Enabled {
					return errors.New("enrichment is disabled in config")
				}
				result, err := rt.enricher.RunBatch(runCtx, enrichment.TriggerBackground)
				if err != nil {
					return fmt.Errorf("enrichment batch: %w", err)
				}
				batch := api.FromBatchResult(result)
				out.Enrichment = &batch
			}
			return writeRefreshOutput(cmd, out, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Run a background enrichment batch after the pass")
	cmd.Flags().BoolVar(&local, "local", false, "Run in this process even when a daemon is reachable")
	return cmd
}

func writeRefreshOutput(cmd *cobra.Command, out refreshOutput, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, out)
	}
	w := cmd.OutOrStdout()
	if out.Queued {
		fmt.Fprintln(w, "A refresh is already running on the daemon; another pass was queued.")
	}
	if out.Refresh != nil {
		renderRefreshSummary(w, *out.Refresh)
	}
	if out.Enrichment != nil {
		fmt.Fprintln(w)
		renderBatch(w, *out.Enrichment)
	} else if out.Source == "daemon" && out.Refresh != nil {
		fmt.Fprintln(w, "New entries were handed to the daemon's enrichment worker.")
	}
	return nil
}
