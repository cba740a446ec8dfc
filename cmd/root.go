package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tonearm/tonearm/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tonearm",
	Short: "Multi-provider audio analysis with consensus scoring",
	Long:  "Runs tempo and key estimation across several analysis providers, reconciles their votes into a single answer per feature, and keeps the full per-provider audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
