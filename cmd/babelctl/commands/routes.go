package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babeldcore/babeld/internal/server"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List installed Babel routes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := request("GET /routes")
			if err != nil {
				return fmt.Errorf("get routes: %w", err)
			}

			var routes []server.RouteDTO
			if err := json.Unmarshal([]byte(resp), &routes); err != nil {
				return fmt.Errorf("unmarshal routes: %w", err)
			}

			out, err := formatRoutes(routes, outputFormat)
			if err != nil {
				return fmt.Errorf("format routes: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func xroutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xroutes",
		Short: "List locally-exported Babel routes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := request("GET /xroutes")
			if err != nil {
				return fmt.Errorf("get xroutes: %w", err)
			}

			var xroutes []server.XrouteDTO
			if err := json.Unmarshal([]byte(resp), &xroutes); err != nil {
				return fmt.Errorf("unmarshal xroutes: %w", err)
			}

			out, err := formatXroutes(xroutes, outputFormat)
			if err != nil {
				return fmt.Errorf("format xroutes: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Dump the feasibility-distance source table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := request("GET /sources")
			if err != nil {
				return fmt.Errorf("get sources: %w", err)
			}

			var sources []server.SourceDTO
			if err := json.Unmarshal([]byte(resp), &sources); err != nil {
				return fmt.Errorf("unmarshal sources: %w", err)
			}

			out, err := formatSources(sources, outputFormat)
			if err != nil {
				return fmt.Errorf("format sources: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}
