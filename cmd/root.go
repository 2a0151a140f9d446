package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/worksafe-analytics/oshindex/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "oshindex",
	Short: "Occupational safety and health maturity index pipeline",
	Long:  "Fuses occupational-health indicators from ILOSTAT, WHO GHO and World Bank WGI with curated reference data, persists them per country, and computes a bounded maturity score.",
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
