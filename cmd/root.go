package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/saleready-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "saleready-cli",
	Short: "Sale-readiness metrics with replayable calculation lineage",
	Long:  "Derives revenue, EBITDA, ROI, payback, and equipment valuation from extracted financial statements, recording every calculation step so any published number can be traced back to its source cells.",
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
