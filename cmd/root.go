package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "face-service",
	Short: "Face recognition and enrollment service for station attendance",
	Long: `Face Service identifies personnel from a face photo among those assigned
to a station, and enrolls new face templates after a liveness check.
Model inference runs in the inference sidecar; embeddings live in MySQL or PostgreSQL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and configures logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	return cfg, nil
}
