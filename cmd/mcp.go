package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/quickAIautomation/quickvetpro/internal/app"
	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/log"
	"github.com/quickAIautomation/quickvetpro/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Expose the knowledge tools over the Model Context Protocol.

The server speaks MCP on stdin/stdout, so logs go to stderr only.
Register it in an MCP client configuration as:

	{"command": "quickvetpro", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries the protocol stream; keep logging on stderr.
	logger := log.New(log.Config{Level: slog.LevelWarn, JSON: true})
	slog.SetDefault(logger)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup application: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown cleanup failed", "error", cerr)
		}
	}()

	srv, err := mcp.NewServer(mcp.Config{
		Name:      "quickvetpro",
		Version:   AppVersion,
		Knowledge: a.Knowledge,
	})
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}
