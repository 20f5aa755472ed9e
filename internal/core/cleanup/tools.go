package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

// CatalogAction 建立、跳過或刪除某個目錄項目的紀錄
type CatalogAction struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LoadCatalogNames 讀取名稱清單檔，依正規化名稱去重且保留原順序
func LoadCatalogNames(path, kind string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s file not found: %w", kind, err)
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s file must be a JSON array of names: %w", kind, err)
	}

	var names []string
	seen := map[string]bool{}
	for _, item := range raw {
		text := strings.TrimSpace(item)
		if text == "" {
			continue
		}
		norm := common.NormalizeName(text)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		names = append(names, text)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s file contains no valid names", kind)
	}
	return names, nil
}

// ToolsSyncSummary 器具同步統計
type ToolsSyncSummary struct {
	Desired               int    `json:"desired"`
	Existing              int    `json:"existing"`
	Created               int    `json:"created"`
	Skipped               int    `json:"skipped"`
	MergeCandidatesTotal  int    `json:"merge_candidates_total"`
	MergeActionsAttempted int    `json:"merge_actions_attempted"`
	Merged                int    `json:"merged"`
	Failed                int    `json:"failed"`
	CheckpointSkipped     int    `json:"checkpoint_skipped"`
	Mode                  string `json:"mode"`
}

// ToolsSyncReport 器具同步報告
type ToolsSyncReport struct {
	Summary        ToolsSyncSummary  `json:"summary"`
	CreateActions  []CatalogAction   `json:"create_actions"`
	MergeActions   []AttemptedAction `json:"merge_actions"`
	SourceFile     string            `json:"source_file"`
	CheckpointFile string            `json:"checkpoint_file"`
}

// ToolsSync 器具目錄同步：先補建缺少的器具，再合併重複
type ToolsSync struct {
	client        *mealie.Client
	DryRun        bool
	Apply         bool
	MaxActions    int
	FilePath      string
	CheckpointDir string
}

// NewToolsSync 創建器具同步作業
func NewToolsSync(client *mealie.Client) *ToolsSync {
	return &ToolsSync{
		client:        client,
		MaxActions:    250,
		FilePath:      "configs/taxonomy/tools.json",
		CheckpointDir: "cache/maintenance",
	}
}

func (t *ToolsSync) checkpointPath() string {
	return filepath.Join(t.CheckpointDir, "tools_sync_checkpoint.json")
}

// buildDuplicateActions 以正規化名稱分組，id 最小者為正典
func buildDuplicateActions(tools []mealie.Entity) []AttemptedAction {
	groups := map[string][]mealie.Entity{}
	for _, item := range tools {
		if item.ID == "" || item.Name == "" {
			continue
		}
		norm := common.NormalizeName(item.Name)
		groups[norm] = append(groups[norm], item)
	}

	var actions []AttemptedAction
	for _, items := range groups {
		if len(items) <= 1 {
			continue
		}
		sorted := make([]mealie.Entity, len(items))
		copy(sorted, items)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
		target := sorted[0]
		for _, item := range sorted[1:] {
			actions = append(actions, AttemptedAction{
				SourceID:   item.ID,
				SourceName: item.Name,
				TargetID:   target.ID,
				TargetName: target.Name,
			})
		}
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].SourceName != actions[j].SourceName {
			return actions[i].SourceName < actions[j].SourceName
		}
		return actions[i].SourceID < actions[j].SourceID
	})
	return actions
}

// Run 執行器具同步並回傳報告
func (t *ToolsSync) Run(ctx context.Context) (*ToolsSyncReport, error) {
	desired, err := LoadCatalogNames(t.FilePath, "tools")
	if err != nil {
		return nil, err
	}
	existing, err := t.client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	existingByNorm := map[string]mealie.Entity{}
	for _, item := range existing {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		existingByNorm[common.NormalizeName(item.Name)] = item
	}

	executable := t.Apply && !t.DryRun
	maxActions := t.MaxActions
	if maxActions < 1 {
		maxActions = 1
	}

	created := 0
	skipped := 0
	failed := 0
	createActions := []CatalogAction{}

	for _, name := range desired {
		norm := common.NormalizeName(name)
		if _, ok := existingByNorm[norm]; ok {
			skipped++
			createActions = append(createActions, CatalogAction{Action: "skip", Name: name, Reason: "exists"})
			continue
		}
		if executable {
			item, err := t.client.CreateTool(ctx, name)
			if err != nil {
				failed++
				createActions = append(createActions, CatalogAction{Action: "create", Name: name, Status: "failed", Error: err.Error()})
				continue
			}
			created++
			existingByNorm[norm] = *item
			createActions = append(createActions, CatalogAction{Action: "create", Name: name, Status: "created"})
		} else {
			createActions = append(createActions, CatalogAction{Action: "create", Name: name, Status: "planned"})
		}
	}

	// 建立後重新列出，合併計畫才看得到剛建立的項目
	tools, err := t.client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	mergeCandidates := buildDuplicateActions(tools)
	checkpoint := LoadCheckpoint(t.checkpointPath())

	mergeActions := []AttemptedAction{}
	merged := 0
	skippedCheckpoint := 0
	mode := "plan"
	if executable {
		mode = "apply"
	}

	for _, candidate := range mergeCandidates {
		if checkpoint.Contains(candidate.SourceID) {
			skippedCheckpoint++
			continue
		}
		if executable && merged >= maxActions {
			break
		}

		entry := candidate
		entry.Mode = mode
		if executable {
			if err := t.client.MergeTools(ctx, candidate.SourceID, candidate.TargetID); err != nil {
				failed++
				entry.Status = "failed"
				entry.Error = err.Error()
				common.LogWarn("tool merge failed",
					zap.String("source", candidate.SourceName),
					zap.String("target", candidate.TargetName),
					zap.Error(err))
			} else {
				merged++
				entry.Status = "merged"
				if err := checkpoint.Record(candidate.SourceID); err != nil {
					common.LogWarn("failed to persist checkpoint", zap.Error(err))
				}
			}
		} else {
			entry.Status = "planned"
		}
		mergeActions = append(mergeActions, entry)
	}

	report := &ToolsSyncReport{
		Summary: ToolsSyncSummary{
			Desired:               len(desired),
			Existing:              len(existing),
			Created:               created,
			Skipped:               skipped,
			MergeCandidatesTotal:  len(mergeCandidates),
			MergeActionsAttempted: len(mergeActions),
			Merged:                merged,
			Failed:                failed,
			CheckpointSkipped:     skippedCheckpoint,
			Mode:                  reportMode(executable),
		},
		CreateActions:  createActions,
		MergeActions:   mergeActions,
		SourceFile:     t.FilePath,
		CheckpointFile: checkpoint.Path(),
	}
	common.LogInfo("tools sync finished",
		zap.Int("created", created),
		zap.Int("merged", merged),
		zap.Int("failed", failed),
		zap.String("mode", report.Summary.Mode))
	return report, nil
}
