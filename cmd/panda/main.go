package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comigor/panda-go/internal/config"
	"github.com/comigor/panda-go/internal/logger"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "panda",
		Short:             "Panda AI voice assistant",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd(), chatCmd(), historyCmd(), clearCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	if cfgPath != "" {
		if err := os.Setenv("CONFIG_PATH", cfgPath); err != nil {
			return err
		}
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	return nil
}
