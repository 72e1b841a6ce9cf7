package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quickAIautomation/quickvetpro/internal/app"
	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})
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

	stats, err := a.Knowledge.Stats(ctx)
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}

	fmt.Printf("Documents:      %d\n", stats.Documents)
	fmt.Printf("Nodes:          %d\n", stats.Nodes)
	fmt.Printf("Chunks:         %d\n", stats.Chunks)
	fmt.Printf("Cache entries:  %d\n", stats.CacheEntries)
	fmt.Printf("Cache hit rate: %.1f%%\n", stats.CacheHitRate*100)
	return nil
}
