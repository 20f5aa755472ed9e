package main

import (
	"mealie-organizer/internal/core/ai/provider"
	"mealie-organizer/internal/core/ai/resultcache"
	"mealie-organizer/internal/core/categorizer"
	"mealie-organizer/internal/core/mealie"

	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	var (
		providerName      string
		recat             bool
		missingTags       bool
		missingCategories bool
	)

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "以 AI 批次補齊食譜分類與標籤",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("provider") {
				cfg.Categorizer.Provider = providerName
			}

			prov, err := provider.New(cfg)
			if err != nil {
				return err
			}
			cache, err := resultcache.New(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine := categorizer.NewEngine(mealie.NewClient(cfg), prov, cache, cfg)
			engine.ReplaceExisting = recat
			switch {
			case missingTags && missingCategories:
				engine.TargetMode = categorizer.TargetMissingEither
			case missingTags:
				engine.TargetMode = categorizer.TargetMissingTags
			case missingCategories:
				engine.TargetMode = categorizer.TargetMissingCategories
			}

			return engine.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "AI 提供者（ollama 或 chatgpt）")
	cmd.Flags().BoolVar(&recat, "recat", false, "重新分類所有食譜，覆寫既有分類與標籤")
	cmd.Flags().BoolVar(&missingTags, "missing-tags", false, "只處理缺少標籤的食譜")
	cmd.Flags().BoolVar(&missingCategories, "missing-categories", false, "只處理缺少分類的食譜")

	return cmd
}
