package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SPXEngine/internal/di"
	"SPXEngine/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "spxengine",
	Short:         "SPX multi-timeframe confluence and replay snapshot engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the replay writer and the ops HTTP server",
	Long: `Starts the periodic replay snapshot flush loop and the ops endpoints
(/healthz, /metrics, /ops/replay/pending, /ops/replay/flush, /ops/multi-tf).
SIGINT or SIGTERM flushes pending rows before exit.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults and env overrides apply without it)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return app.Run(ctx)
}
