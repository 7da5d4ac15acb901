package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve crowdsim tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout so AI tools can run
simulations and read recorded runs.

Tools: crowdsim_run, crowdsim_batch, crowdsim_runs, crowdsim_contacts,
crowdsim_graph, crowdsim_backup, crowdsim_restore.

Example client configuration:
  {"mcpServers": {"crowdsim": {"command": "crowdsim", "args": ["mcp-server", "--root", "/path/to/project"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "crowdsim",
				Version:  version,
				Root:     absRoot,
				Settings: cfg,
				Logger:   newLogger(cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
