package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "krosmoz-import",
	Short: "Game-data import pipeline for Krosmoz JDR",
	Long:  "Collects entities from the configured game-data API, converts them through declared field mappings and formulas, validates against the ruleset characteristics and integrates them into the game database.",
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
