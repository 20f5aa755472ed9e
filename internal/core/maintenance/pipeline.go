package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mealie-organizer/internal/core/ai/provider"
	"mealie-organizer/internal/core/ai/resultcache"
	"mealie-organizer/internal/core/categorizer"
	"mealie-organizer/internal/core/cleanup"
	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/parser"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

// 可用的維護階段，依預設執行順序排列
var stageOrder = []string{"parse", "foods", "units", "tools", "labels", "categorize"}

// StageResult 單一階段的執行結果
type StageResult struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Runner 串接所有維護階段的管線
type Runner struct {
	client          *mealie.Client
	config          *config.Config
	ContinueOnError bool
	ApplyCleanups   bool
	DryRun          bool
}

// NewRunner 創建維護管線
func NewRunner(client *mealie.Client, cfg *config.Config) *Runner {
	return &Runner{
		client: client,
		config: cfg,
		DryRun: cfg.DryRun,
	}
}

// ParseStages 解析逗號分隔的階段清單，空字串回傳預設階段
func ParseStages(raw string, defaults []string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		if len(defaults) == 0 {
			return append([]string{}, stageOrder...), nil
		}
		raw = strings.Join(defaults, ",")
	}
	known := map[string]bool{}
	for _, name := range stageOrder {
		known[name] = true
	}
	var stages []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown maintenance stage %q (available: %s)", name, strings.Join(stageOrder, ", "))
		}
		stages = append(stages, name)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no maintenance stages selected")
	}
	return stages, nil
}

func (r *Runner) runStage(ctx context.Context, name string) error {
	switch name {
	case "parse":
		_, err := parser.NewPipeline(r.client, r.config, r.DryRun).Run(ctx)
		return err
	case "foods":
		job := cleanup.NewFoodsCleanup(r.client)
		job.DryRun = r.DryRun
		job.Apply = r.ApplyCleanups
		job.MaxActions = r.config.Maintenance.MaxActionsPerStage
		job.CheckpointDir = r.config.Maintenance.CheckpointDir
		job.ReportFile = r.config.Taxonomy.FoodsReportFile
		job.AllowFuzzy = r.config.Taxonomy.FoodsAllowFuzzy
		_, err := job.Run(ctx)
		return err
	case "units":
		job := cleanup.NewUnitsCleanup(r.client)
		job.DryRun = r.DryRun
		job.Apply = r.ApplyCleanups
		job.MaxActions = r.config.Maintenance.MaxActionsPerStage
		job.CheckpointDir = r.config.Maintenance.CheckpointDir
		job.ReportFile = r.config.Taxonomy.UnitsReportFile
		job.AliasFile = r.config.Taxonomy.UnitsAliasFile
		_, err := job.Run(ctx)
		return err
	case "tools":
		job := cleanup.NewToolsSync(r.client)
		job.DryRun = r.DryRun
		job.Apply = r.ApplyCleanups
		job.MaxActions = r.config.Maintenance.MaxActionsPerStage
		job.CheckpointDir = r.config.Maintenance.CheckpointDir
		job.FilePath = r.config.Taxonomy.ToolsFile
		_, err := job.Run(ctx)
		return err
	case "labels":
		job := cleanup.NewLabelsSync(r.client)
		job.DryRun = r.DryRun
		job.Apply = r.ApplyCleanups
		job.FilePath = r.config.Taxonomy.LabelsFile
		_, err := job.Run(ctx)
		return err
	case "categorize":
		prov, err := provider.New(r.config)
		if err != nil {
			return fmt.Errorf("初始化 AI 供應商失敗: %w", err)
		}
		cache, err := resultcache.New(r.config)
		if err != nil {
			return fmt.Errorf("初始化結果快取失敗: %w", err)
		}
		engine := categorizer.NewEngine(r.client, prov, cache, r.config)
		engine.DryRun = r.DryRun
		return engine.Run(ctx)
	default:
		return fmt.Errorf("unknown maintenance stage %q", name)
	}
}

// Run 依序執行指定階段，預設遇錯即停
func (r *Runner) Run(ctx context.Context, stages []string) ([]StageResult, error) {
	results := make([]StageResult, 0, len(stages))
	var failed []string
	for _, name := range stages {
		common.LogInfo("開始維護階段",
			zap.String("stage", name),
			zap.Bool("apply_cleanups", r.ApplyCleanups),
			zap.Bool("dry_run", r.DryRun))
		start := time.Now()
		err := r.runStage(ctx, name)
		result := StageResult{Stage: name, Duration: time.Since(start), Err: err}
		results = append(results, result)
		if err != nil {
			failed = append(failed, name)
			common.LogError("維護階段失敗",
				zap.String("stage", name),
				zap.Duration("duration", result.Duration),
				zap.Error(err))
			if !r.ContinueOnError {
				return results, fmt.Errorf("stage %s failed: %w", name, err)
			}
			continue
		}
		common.LogInfo("維護階段完成",
			zap.String("stage", name),
			zap.Duration("duration", result.Duration))
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("maintenance finished with failed stages: %s", strings.Join(failed, ", "))
	}
	return results, nil
}
