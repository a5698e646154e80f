package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babeldcore/babeld/internal/server"
)

func neighboursCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "neighbours",
		Aliases: []string{"neighbors", "neigh"},
		Short:   "List known Babel neighbours",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := request("GET /neighbours")
			if err != nil {
				return fmt.Errorf("get neighbours: %w", err)
			}

			var neighbours []server.NeighbourDTO
			if err := json.Unmarshal([]byte(resp), &neighbours); err != nil {
				return fmt.Errorf("unmarshal neighbours: %w", err)
			}

			out, err := formatNeighbours(neighbours, outputFormat)
			if err != nil {
				return fmt.Errorf("format neighbours: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}
