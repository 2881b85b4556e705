package main

import (
	"github.com/spf13/cobra"

	"github.com/fentz26/hivemind/internal/mcp"
	"github.com/fentz26/hivemind/internal/sweeper"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the coordinator as MCP tools over stdio",
	Long: `Runs an in-process coordinator and serves it as Model Context Protocol tools
over stdin and stdout. History and decision records go to the same database
as the daemon.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := newComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	sweep, err := sweeper.New(sweeper.Config{
		Coordinator: rt.coord,
		History:     rt.store,
		Logger:      logger,
		Interval:    cfg.Retention.SweepInterval,
		MaxAge:      cfg.Retention.MaxAge,
	})
	if err != nil {
		return err
	}
	sweep.Start()
	defer sweep.Stop()

	srv, err := mcp.New(mcp.Config{
		Coordinator: rt.coord,
		Sampler:     rt.sampler,
		Logger:      logger,
		Version:     Version,
	})
	if err != nil {
		return err
	}

	return srv.ServeStdio()
}
