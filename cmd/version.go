package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/quickAIautomation/quickvetpro/internal/config"
)

func newVersionCmd() *cobra.Command {
	var showConfig bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("quickvetpro %s\n", AppVersion)
			fmt.Printf("  commit:  %s\n", GitCommit)
			fmt.Printf("  built:   %s\n", BuildTime)
			fmt.Printf("  runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

			if !showConfig {
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fmt.Println()
			fmt.Printf("Provider:      %s\n", cfg.Provider)
			fmt.Printf("Model:         %s\n", cfg.ModelName)
			fmt.Printf("Embedder:      %s\n", cfg.EmbedderModel)
			fmt.Printf("Postgres:      %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
			fmt.Printf("Listen:        %s\n", cfg.ListenAddr)
			fmt.Printf("Cache:         enabled=%t dir=%s\n", cfg.Cache.Enabled, cfg.Cache.Dir)
			if os.Getenv("GEMINI_API_KEY") != "" {
				fmt.Println("GEMINI_API_KEY: set")
			} else {
				fmt.Println("GEMINI_API_KEY: not set")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showConfig, "config", false, "also print the effective configuration")

	return cmd
}
