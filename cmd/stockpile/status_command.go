package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stockpile/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if errors.Is(err, api.ErrDaemonUnreachable) {
				if jsonOut {
					return writeJSON(cmd, api.DaemonStatus{})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running. Start it with `stockpile daemon`.")
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
