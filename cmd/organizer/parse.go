package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/parser"

	"github.com/spf13/cobra"
)

// signalContext 在 Ctrl-C 或 SIGTERM 時取消執行
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseCmd() *cobra.Command {
	var (
		confidence  float64
		maxRecipes  int
		afterSlug   string
		strategies  []string
		forceParser string
		pageSize    int
		delay       time.Duration
		outputDir   string
		timeout     time.Duration
		retries     int
		backoff     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "解析未結構化的食譜食材行",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("conf") {
				cfg.Parser.ConfidenceThreshold = confidence
			}
			if cmd.Flags().Changed("max") {
				cfg.Parser.MaxRecipes = maxRecipes
			}
			if cmd.Flags().Changed("after-slug") {
				cfg.Parser.AfterSlug = afterSlug
			}
			if cmd.Flags().Changed("parsers") {
				cfg.Parser.Strategies = strategies
			}
			if cmd.Flags().Changed("force-parser") {
				cfg.Parser.ForceParser = forceParser
				cfg.Parser.Strategies = []string{forceParser}
			}
			if cmd.Flags().Changed("page-size") {
				cfg.Parser.PageSize = pageSize
			}
			if cmd.Flags().Changed("delay") {
				cfg.Parser.Delay = delay
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Parser.OutputDir = outputDir
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Mealie.Timeout = timeout
			}
			if cmd.Flags().Changed("retries") {
				cfg.Mealie.Retries = retries
			}
			if cmd.Flags().Changed("backoff") {
				cfg.Mealie.Backoff = backoff
			}

			ctx, cancel := signalContext()
			defer cancel()

			client := mealie.NewClient(cfg)
			_, err := parser.NewPipeline(client, cfg, cfg.DryRun).Run(ctx)
			return err
		},
	}

	cmd.Flags().Float64Var(&confidence, "conf", 0.80, "每行解析結果的最低平均信心值")
	cmd.Flags().IntVar(&maxRecipes, "max", 0, "本次最多處理的食譜數（0 為不限）")
	cmd.Flags().StringVar(&afterSlug, "after-slug", "", "從指定 slug 之後繼續處理")
	cmd.Flags().StringSliceVar(&strategies, "parsers", nil, "依序嘗試的解析策略（nlp、openai、brute）")
	cmd.Flags().StringVar(&forceParser, "force-parser", "", "只使用指定解析策略")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "列出食譜時的分頁大小")
	cmd.Flags().DurationVar(&delay, "delay", 0, "每筆成功寫入後的延遲")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "成功清單與審核報告的輸出目錄")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "單次 Mealie API 請求逾時")
	cmd.Flags().IntVar(&retries, "retries", 0, "可重試請求的最大重試次數")
	cmd.Flags().DurationVar(&backoff, "backoff", 0, "重試之間的等待時間")

	return cmd
}
