package main

import (
	"fmt"

	"kirabridge/internal/mcptools"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the context tools over MCP (stdio)",
		Long: "Runs an MCP server on stdin/stdout exposing assemble_context, list_personas and " +
			"adapt_message. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.MCP.Enabled {
				return fmt.Errorf("mcp server is disabled (set mcp.enabled to true)")
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcptools.NewServer(mcptools.ServerConfig{
				Version:        version,
				Assembler:      a.assembler,
				Personas:       a.catalog,
				Router:         a.router,
				DefaultPersona: cfg.Personas.Default,
			})
			return server.ServeStdio(s)
		},
	}
}
