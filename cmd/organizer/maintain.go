package main

import (
	"mealie-organizer/internal/core/maintenance"
	"mealie-organizer/internal/core/mealie"

	"github.com/spf13/cobra"
)

func maintainCmd() *cobra.Command {
	var (
		stagesFlag      string
		continueOnError bool
		applyCleanups   bool
	)

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "依序執行完整維護管線",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := maintenance.ParseStages(stagesFlag, cfg.Maintenance.DefaultStages)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			runner := maintenance.NewRunner(mealie.NewClient(cfg), cfg)
			runner.ContinueOnError = continueOnError
			runner.ApplyCleanups = applyCleanups
			runner.DryRun = cfg.DryRun

			_, err = runner.Run(ctx, stages)
			return err
		},
	}

	cmd.Flags().StringVar(&stagesFlag, "stages", "", "逗號分隔的階段清單（parse、foods、units、tools、labels、categorize）")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "單一階段失敗後仍繼續執行其餘階段")
	cmd.Flags().BoolVar(&applyCleanups, "apply-cleanups", false, "清理階段實際執行合併，而非僅產出報告")

	return cmd
}
