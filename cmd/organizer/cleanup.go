package main

import (
	"mealie-organizer/internal/core/cleanup"
	"mealie-organizer/internal/core/mealie"

	"github.com/spf13/cobra"
)

func foodsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foods",
		Short: "食材分類法維護",
	}
	cmd.AddCommand(foodsCleanupCmd())
	return cmd
}

func foodsCleanupCmd() *cobra.Command {
	var (
		apply         bool
		maxActions    int
		reportFile    string
		checkpointDir string
		allowFuzzy    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "合併重複食材並產出審核報告",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			job := cleanup.NewFoodsCleanup(mealie.NewClient(cfg))
			job.DryRun = cfg.DryRun
			job.Apply = apply
			job.AllowFuzzy = allowFuzzy
			if cmd.Flags().Changed("max-actions") {
				job.MaxActions = maxActions
			} else {
				job.MaxActions = cfg.Maintenance.MaxActionsPerStage
			}
			if cmd.Flags().Changed("report-file") {
				job.ReportFile = reportFile
			} else if cfg.Taxonomy.FoodsReportFile != "" {
				job.ReportFile = cfg.Taxonomy.FoodsReportFile
			}
			if cmd.Flags().Changed("checkpoint-dir") {
				job.CheckpointDir = checkpointDir
			} else {
				job.CheckpointDir = cfg.Maintenance.CheckpointDir
			}

			_, err := job.Run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "實際執行合併（預設僅報告）")
	cmd.Flags().IntVar(&maxActions, "max-actions", 0, "單次執行的合併上限")
	cmd.Flags().StringVar(&reportFile, "report-file", "", "報告輸出路徑")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "合併檢查點目錄")
	cmd.Flags().BoolVar(&allowFuzzy, "allow-fuzzy", false, "在報告中加入近似名稱候選")

	return cmd
}

func unitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "單位分類法維護",
	}
	cmd.AddCommand(unitsCleanupCmd())
	return cmd
}

func unitsCleanupCmd() *cobra.Command {
	var (
		apply         bool
		maxActions    int
		aliasFile     string
		reportFile    string
		checkpointDir string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "依別名表正規化單位並合併重複項",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			job := cleanup.NewUnitsCleanup(mealie.NewClient(cfg))
			job.DryRun = cfg.DryRun
			job.Apply = apply
			if cmd.Flags().Changed("max-actions") {
				job.MaxActions = maxActions
			} else {
				job.MaxActions = cfg.Maintenance.MaxActionsPerStage
			}
			if cmd.Flags().Changed("alias-file") {
				job.AliasFile = aliasFile
			} else if cfg.Taxonomy.UnitsAliasFile != "" {
				job.AliasFile = cfg.Taxonomy.UnitsAliasFile
			}
			if cmd.Flags().Changed("report-file") {
				job.ReportFile = reportFile
			} else if cfg.Taxonomy.UnitsReportFile != "" {
				job.ReportFile = cfg.Taxonomy.UnitsReportFile
			}
			if cmd.Flags().Changed("checkpoint-dir") {
				job.CheckpointDir = checkpointDir
			} else {
				job.CheckpointDir = cfg.Maintenance.CheckpointDir
			}

			_, err := job.Run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "實際執行合併（預設僅報告）")
	cmd.Flags().IntVar(&maxActions, "max-actions", 0, "單次執行的合併上限")
	cmd.Flags().StringVar(&aliasFile, "alias-file", "", "單位別名對照檔")
	cmd.Flags().StringVar(&reportFile, "report-file", "", "報告輸出路徑")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "合併檢查點目錄")

	return cmd
}

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "器具分類法維護",
	}
	cmd.AddCommand(toolsSyncCmd())
	return cmd
}

func toolsSyncCmd() *cobra.Command {
	var (
		apply         bool
		maxActions    int
		filePath      string
		checkpointDir string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "依目標清單建立器具並合併重複項",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			job := cleanup.NewToolsSync(mealie.NewClient(cfg))
			job.DryRun = cfg.DryRun
			job.Apply = apply
			if cmd.Flags().Changed("max-actions") {
				job.MaxActions = maxActions
			} else {
				job.MaxActions = cfg.Maintenance.MaxActionsPerStage
			}
			if cmd.Flags().Changed("file") {
				job.FilePath = filePath
			} else if cfg.Taxonomy.ToolsFile != "" {
				job.FilePath = cfg.Taxonomy.ToolsFile
			}
			if cmd.Flags().Changed("checkpoint-dir") {
				job.CheckpointDir = checkpointDir
			} else {
				job.CheckpointDir = cfg.Maintenance.CheckpointDir
			}

			_, err := job.Run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "實際建立與合併（預設僅報告）")
	cmd.Flags().IntVar(&maxActions, "max-actions", 0, "單次執行的合併上限")
	cmd.Flags().StringVar(&filePath, "file", "", "目標器具清單檔")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "合併檢查點目錄")

	return cmd
}

func labelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "標籤分類法維護",
	}
	cmd.AddCommand(labelsSyncCmd())
	return cmd
}

func labelsSyncCmd() *cobra.Command {
	var (
		apply    bool
		replace  bool
		filePath string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "依目標清單同步群組標籤",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			job := cleanup.NewLabelsSync(mealie.NewClient(cfg))
			job.DryRun = cfg.DryRun
			job.Apply = apply
			job.Replace = replace
			if cmd.Flags().Changed("file") {
				job.FilePath = filePath
			} else if cfg.Taxonomy.LabelsFile != "" {
				job.FilePath = cfg.Taxonomy.LabelsFile
			}

			_, err := job.Run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "實際建立與刪除（預設僅報告）")
	cmd.Flags().BoolVar(&replace, "replace", false, "刪除不在清單中的既有標籤")
	cmd.Flags().StringVar(&filePath, "file", "", "目標標籤清單檔")

	return cmd
}
