package main

import (
	"fmt"
	"os"

	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg        *config.Config
	flagDryRun bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "organizer",
		Short:        "Mealie 食譜庫維護工具",
		Long:         "批次整理 Mealie 食譜庫：食材解析、分類法清理與 AI 輔助分類。",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "只計算並輸出計畫，不寫入 Mealie")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(foodsCmd())
	rootCmd.AddCommand(unitsCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(labelsCmd())
	rootCmd.AddCommand(categorizeCmd())
	rootCmd.AddCommand(maintainCmd())
	rootCmd.AddCommand(serveCmd())

	err := rootCmd.Execute()
	common.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func bootstrap() error {
	loaded, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	if err := common.InitLogger(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if flagDryRun {
		cfg.DryRun = true
	}

	common.LogInfo("載入設定",
		zap.String("mealie_url", cfg.Mealie.URL),
		zap.String("mealie_api_key", config.MaskAPIKey(cfg.Mealie.APIKey)),
		zap.Bool("dry_run", cfg.DryRun),
	)
	return nil
}
