package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quickAIautomation/quickvetpro/api"
	"github.com/quickAIautomation/quickvetpro/internal/app"
	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the knowledge retrieval HTTP API.

The server exposes query, batch, stats and invalidation endpoints plus
health probes. Configured warmup queries are run in the background once
the server is up, priming the result cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, verbose)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config listen_addr)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func runServe(addr string, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: true})
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

	if queries := cfg.Retrieval.WarmupQueries; len(queries) > 0 {
		go func() {
			warmed := a.Knowledge.WarmUp(ctx, queries)
			logger.Info("cache warmup finished", "warmed", warmed, "total", len(queries))
		}()
	}

	if addr == "" {
		addr = cfg.ListenAddr
	}

	srv := api.NewServer(a.DBPool, a.Knowledge, cfg.RateRPS, cfg.RateBurst, logger.With("component", "api"))
	return srv.Run(ctx, addr)
}
