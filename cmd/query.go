package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quickAIautomation/quickvetpro/internal/app"
	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

func newQueryCmd() *cobra.Command {
	var (
		mode   string
		answer bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a one-shot knowledge query",
		Long: `Run a single query against the knowledge corpus and print the result.

By default the raw retrieved content is printed. With --answer the
retrieved material is handed to the configured model, which composes a
grounded answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(strings.Join(args, " "), mode, answer)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "retrieval mode: vector, structural, hybrid or auto")
	cmd.Flags().BoolVar(&answer, "answer", false, "compose a model answer from the retrieved material")

	return cmd
}

func runQuery(text, mode string, answer bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	parsedMode, err := knowledge.ParseMode(mode)
	if err != nil {
		return err
	}

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

	if answer {
		reply, err := a.CreateAgent().Answer(ctx, text)
		if err != nil {
			return fmt.Errorf("compose answer: %w", err)
		}
		fmt.Println(reply)
		return nil
	}

	result := a.Knowledge.Query(ctx, text, parsedMode)
	if !result.Success {
		return fmt.Errorf("query failed (%s): %s", result.FailureKind, result.Error)
	}

	fmt.Printf("Mode: %s  Cached: %t  Elapsed: %dms\n", result.Mode, result.Cached, result.ElapsedMS)
	if len(result.Path) > 0 {
		fmt.Println("Path:")
		for _, step := range result.Path {
			fmt.Printf("  [%d] %s\n", step.NodeID, step.Title)
		}
	}
	fmt.Println()
	fmt.Println(result.Content)
	return nil
}
