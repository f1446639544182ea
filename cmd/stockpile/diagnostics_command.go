package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stockpile/internal/diagnostics"
)

func newDiagnosticsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var local bool
	var limit int

	cmd := &cobra.Command{
		Use:     "diagnostics",
		Aliases: []string{"doctor"},
		Short:   "Report catalog, provider, and environment health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report *diagnostics.Report
			if client, ok := ctx.daemonClient(cmd.Context(), local); ok {
				remote, err := client.Diagnostics(cmd.Context())
				if err != nil {
					return err
				}
				report = remote
			} else {
				rt, err := ctx.openRuntime()
				if err != nil {
					return err
				}
				defer rt.Close()
				report, err = diagnostics.Build(cmd.Context(), diagnostics.Inputs{
					Catalog:   rt.catalog,
					Installs:  rt.installs,
					Config:    rt.cfg,
					Providers: rt.providers.Statuses(),
					Limit:     limit,
				})
				if err != nil {
					return fmt.Errorf("build diagnostics: %w", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd, report)
			}
			renderDiagnostics(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Build the report in this process even when a daemon is reachable")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum failed and never-attempted entries to list")
	return cmd
}
