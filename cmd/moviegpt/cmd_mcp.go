package main

import (
	"github.com/spf13/cobra"

	moviemcp "github.com/matiasleandrokruk/moviegpt/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the read-only query tool over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// stdout carries the protocol; logs go to stderr
			a, err := newApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			srv, err := moviemcp.NewServer(a.tools, moviemcp.Options{SchemaOverview: a.overview, Log: a.log})
			if err != nil {
				return err
			}
			return moviemcp.ServeStdio(ctx, srv)
		},
	}
}
