package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/industry-viz/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "industry-viz",
	Short: "Industry visualization data service",
	Long:  "Loads an industry with its departments, cities or occupations from the data API, enriches the rows with location and occupation metadata, and serves the result to the visualization front end.",
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
