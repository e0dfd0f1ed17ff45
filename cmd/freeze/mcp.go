package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghyeongl/freeze/engine"
	"github.com/ghyeongl/freeze/mcp"
)

func NewMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcp.NewServer(a.mgr, os.Stdin, os.Stdout, engine.Logger("mcp"))
			if err := srv.Run(); err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		},
	}
}
