package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stockpile/internal/api"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var origin string
	var state string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed software with catalog metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			rows, err := rt.installs.GetJoinedWithCatalog(cmd.Context())
			if err != nil {
				return fmt.Errorf("read inventory: %w", err)
			}
			items := filterItems(api.FromJoinedList(rows), origin, state)
			if jsonOut {
				if items == nil {
					items = []api.InventoryItem{}
				}
				return writeJSON(cmd, api.InventoryResponse{Items: items})
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(w, "No installations recorded. Run `stockpile refresh` to detect installed software.")
				return nil
			}
			renderInventory(w, items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&origin, "origin", "", "Only show installations from this origin")
	cmd.Flags().StringVar(&state, "state", "", "Only show entries in this enrichment state")
	return cmd
}

func filterItems(items []api.InventoryItem, origin, state string) []api.InventoryItem {
	origin = strings.ToLower(strings.TrimSpace(origin))
	state = strings.ToLower(strings.TrimSpace(state))
	if origin == "" && state == "" {
		return items
	}
	var out []api.InventoryItem
	for _, item := range items {
		if origin != "" && item.Origin != origin {
			continue
		}
		if state != "" && item.EnrichmentState != state {
			continue
		}
		out = append(out, item)
	}
	return out
}
