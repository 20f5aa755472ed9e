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

// UnitMergeAction 單位合併動作與其來由
type UnitMergeAction struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
	Reason     string `json:"reason"`
}

// CreatedCanonical 建立或預計建立的正典單位
type CreatedCanonical struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// UnitsCleanupSummary 單位清理統計
type UnitsCleanupSummary struct {
	UnitsTotal           int    `json:"units_total"`
	AliasEntries         int    `json:"alias_entries"`
	MergeCandidatesTotal int    `json:"merge_candidates_total"`
	ActionsAttempted     int    `json:"actions_attempted"`
	ActionsApplied       int    `json:"actions_applied"`
	ActionsFailed        int    `json:"actions_failed"`
	CheckpointSkipped    int    `json:"checkpoint_skipped"`
	CreatedCanonicals    int    `json:"created_canonicals"`
	UnmappedUnits        int    `json:"unmapped_units"`
	Mode                 string `json:"mode"`
}

// UnitsCleanupReport 單位清理報告
type UnitsCleanupReport struct {
	Summary           UnitsCleanupSummary `json:"summary"`
	CreatedCanonicals []CreatedCanonical  `json:"created_canonicals"`
	AttemptedActions  []AttemptedAction   `json:"attempted_actions"`
	UnmappedUnits     []string            `json:"unmapped_units"`
	CheckpointFile    string              `json:"checkpoint_file"`
	AliasFile         string              `json:"alias_file"`
}

// AliasMap 正規化別名到正典名稱的映射
type AliasMap struct {
	// 正規化正典名稱 -> 顯示名稱
	CanonicalDisplay map[string]string
	// 正規化別名 -> 正規化正典名稱
	AliasToCanonical map[string]string
}

type aliasEntry struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
}

// LoadAliases 讀取別名檔，同一別名映射到兩個正典即為設定錯誤，直接失敗
// 檔案接受物件（canonical -> aliases）或物件陣列兩種格式
func LoadAliases(path string) (*AliasMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("units alias file not found: %w", err)
	}

	var entries []aliasEntry
	var asObject map[string][]string
	if err := json.Unmarshal(data, &asObject); err == nil {
		keys := make([]string, 0, len(asObject))
		for canonical := range asObject {
			keys = append(keys, canonical)
		}
		sort.Strings(keys)
		for _, canonical := range keys {
			entries = append(entries, aliasEntry{Canonical: canonical, Aliases: asObject[canonical]})
		}
	} else {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("units alias file must be an object or array of objects: %w", err)
		}
	}

	aliases := &AliasMap{
		CanonicalDisplay: map[string]string{},
		AliasToCanonical: map[string]string{},
	}
	for _, entry := range entries {
		canonical := strings.TrimSpace(entry.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("each alias entry must include non-empty 'canonical'")
		}
		canonicalNorm := common.NormalizeName(canonical)
		if _, ok := aliases.CanonicalDisplay[canonicalNorm]; !ok {
			aliases.CanonicalDisplay[canonicalNorm] = canonical
		}

		for _, alias := range entry.Aliases {
			aliasName := strings.TrimSpace(alias)
			if aliasName == "" {
				continue
			}
			aliasNorm := common.NormalizeName(aliasName)
			if existing, ok := aliases.AliasToCanonical[aliasNorm]; ok && existing != canonicalNorm {
				return nil, fmt.Errorf("alias %q maps to multiple canonicals: %q and %q",
					aliasName, aliases.CanonicalDisplay[existing], canonical)
			}
			aliases.AliasToCanonical[aliasNorm] = canonicalNorm
		}
	}
	return aliases, nil
}

// UnitsCleanup 單位標準化清理
type UnitsCleanup struct {
	client        *mealie.Client
	DryRun        bool
	Apply         bool
	MaxActions    int
	AliasFile     string
	ReportFile    string
	CheckpointDir string
}

// NewUnitsCleanup 創建單位清理作業
func NewUnitsCleanup(client *mealie.Client) *UnitsCleanup {
	return &UnitsCleanup{
		client:        client,
		MaxActions:    250,
		AliasFile:     "configs/taxonomy/units_aliases.json",
		ReportFile:    "reports/units_cleanup_report.json",
		CheckpointDir: "cache/maintenance",
	}
}

func (u *UnitsCleanup) checkpointPath() string {
	return filepath.Join(u.CheckpointDir, "units_cleanup_checkpoint.json")
}

// Run 執行單位標準化並寫出報告
func (u *UnitsCleanup) Run(ctx context.Context) (*UnitsCleanupReport, error) {
	// 別名檔有衝突就在任何遠端呼叫前失敗
	aliases, err := LoadAliases(u.AliasFile)
	if err != nil {
		return nil, err
	}

	units, err := u.client.ListUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	unitsByNorm := map[string][]mealie.Entity{}
	for _, unit := range units {
		if unit.ID == "" || unit.Name == "" {
			continue
		}
		norm := common.NormalizeName(unit.Name)
		if norm == "" {
			continue
		}
		unitsByNorm[norm] = append(unitsByNorm[norm], unit)
	}

	checkpoint := LoadCheckpoint(u.checkpointPath())
	executable := u.Apply && !u.DryRun
	maxActions := u.MaxActions
	if maxActions < 1 {
		maxActions = 1
	}

	createdCanonicals := []CreatedCanonical{}
	canonicalIDByNorm := map[string]string{}

	// 缺少的正典單位先建立（或列入計畫）
	canonicalNorms := make([]string, 0, len(aliases.CanonicalDisplay))
	for norm := range aliases.CanonicalDisplay {
		canonicalNorms = append(canonicalNorms, norm)
	}
	sort.Strings(canonicalNorms)

	for _, canonicalNorm := range canonicalNorms {
		display := aliases.CanonicalDisplay[canonicalNorm]
		if existing := unitsByNorm[canonicalNorm]; len(existing) > 0 {
			canonicalIDByNorm[canonicalNorm] = lowestID(existing)
			continue
		}
		if executable {
			created, err := u.client.CreateUnit(ctx, display, "")
			if err != nil {
				common.LogWarn("canonical unit create failed", zap.String("name", display), zap.Error(err))
				continue
			}
			if created.ID != "" {
				canonicalIDByNorm[canonicalNorm] = created.ID
				createdCanonicals = append(createdCanonicals, CreatedCanonical{ID: created.ID, Name: display, Status: "created"})
			}
		} else {
			createdCanonicals = append(createdCanonicals, CreatedCanonical{Name: display, Status: "planned_create"})
		}
	}

	for norm, items := range unitsByNorm {
		if _, ok := canonicalIDByNorm[norm]; ok {
			continue
		}
		canonicalIDByNorm[norm] = lowestID(items)
	}

	var actions []UnitMergeAction

	// 完全重複的名稱
	for norm, items := range unitsByNorm {
		if len(items) <= 1 {
			continue
		}
		targetID := canonicalIDByNorm[norm]
		if targetID == "" {
			continue
		}
		targetName := ""
		for _, item := range items {
			if item.ID == targetID {
				targetName = item.Name
				break
			}
		}
		for _, item := range items {
			if item.ID == targetID {
				continue
			}
			actions = append(actions, UnitMergeAction{
				SourceID:   item.ID,
				SourceName: item.Name,
				TargetID:   targetID,
				TargetName: targetName,
				Reason:     "exact_duplicate",
			})
		}
	}

	// 別名驅動的合併
	aliasNorms := make([]string, 0, len(aliases.AliasToCanonical))
	for norm := range aliases.AliasToCanonical {
		aliasNorms = append(aliasNorms, norm)
	}
	sort.Strings(aliasNorms)

	for _, norm := range aliasNorms {
		canonicalNorm := aliases.AliasToCanonical[norm]
		sourceItems := unitsByNorm[norm]
		if len(sourceItems) == 0 {
			continue
		}
		targetID := canonicalIDByNorm[canonicalNorm]
		if targetID == "" {
			continue
		}
		targetName := aliases.CanonicalDisplay[canonicalNorm]
		for _, item := range sourceItems {
			if item.ID == targetID {
				continue
			}
			name := targetName
			if name == "" {
				name = item.Name
			}
			actions = append(actions, UnitMergeAction{
				SourceID:   item.ID,
				SourceName: item.Name,
				TargetID:   targetID,
				TargetName: name,
				Reason:     "alias_map",
			})
		}
	}

	// 同一來源出現多個動作時 alias_map 優先
	dedup := map[string]UnitMergeAction{}
	for _, action := range actions {
		existing, ok := dedup[action.SourceID]
		if !ok {
			dedup[action.SourceID] = action
			continue
		}
		if existing.Reason != "alias_map" && action.Reason == "alias_map" {
			dedup[action.SourceID] = action
		}
	}
	actions = actions[:0]
	for _, action := range dedup {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.SourceName != b.SourceName {
			return a.SourceName < b.SourceName
		}
		return a.SourceID < b.SourceID
	})

	// 無別名也無正典條目的單位，列出供人工處理
	unmappedSet := map[string]bool{}
	for norm, items := range unitsByNorm {
		if _, ok := aliases.CanonicalDisplay[norm]; ok {
			continue
		}
		if _, ok := aliases.AliasToCanonical[norm]; ok {
			continue
		}
		for _, item := range items {
			if strings.TrimSpace(item.Name) != "" {
				unmappedSet[item.Name] = true
			}
		}
	}
	unmapped := make([]string, 0, len(unmappedSet))
	for name := range unmappedSet {
		unmapped = append(unmapped, name)
	}
	sort.Strings(unmapped)

	attempted := []AttemptedAction{}
	applied := 0
	failed := 0
	skippedCheckpoint := 0
	mode := "plan"
	if executable {
		mode = "apply"
	}

	for _, action := range actions {
		if checkpoint.Contains(action.SourceID) {
			skippedCheckpoint++
			continue
		}
		if executable && applied >= maxActions {
			break
		}

		entry := AttemptedAction{
			SourceID:   action.SourceID,
			SourceName: action.SourceName,
			TargetID:   action.TargetID,
			TargetName: action.TargetName,
			Reason:     action.Reason,
			Mode:       mode,
		}
		if executable {
			if err := u.client.MergeUnits(ctx, action.SourceID, action.TargetID); err != nil {
				failed++
				entry.Status = "failed"
				entry.Error = err.Error()
				common.LogWarn("unit merge failed",
					zap.String("source", action.SourceName),
					zap.String("target", action.TargetName),
					zap.Error(err))
			} else {
				applied++
				entry.Status = "merged"
				if err := checkpoint.Record(action.SourceID); err != nil {
					common.LogWarn("failed to persist checkpoint", zap.Error(err))
				}
			}
		} else {
			entry.Status = "planned"
		}
		attempted = append(attempted, entry)
	}

	report := &UnitsCleanupReport{
		Summary: UnitsCleanupSummary{
			UnitsTotal:           len(units),
			AliasEntries:         len(aliases.AliasToCanonical),
			MergeCandidatesTotal: len(actions),
			ActionsAttempted:     len(attempted),
			ActionsApplied:       applied,
			ActionsFailed:        failed,
			CheckpointSkipped:    skippedCheckpoint,
			CreatedCanonicals:    len(createdCanonicals),
			UnmappedUnits:        len(unmapped),
			Mode:                 reportMode(executable),
		},
		CreatedCanonicals: createdCanonicals,
		AttemptedActions:  attempted,
		UnmappedUnits:     unmapped,
		CheckpointFile:    checkpoint.Path(),
		AliasFile:         u.AliasFile,
	}

	if err := os.MkdirAll(filepath.Dir(u.ReportFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := common.WriteJSONFile(u.ReportFile, report); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	common.LogInfo("units cleanup report written",
		zap.String("path", u.ReportFile),
		zap.Int("applied", applied),
		zap.Int("failed", failed),
		zap.Int("unmapped", len(unmapped)))
	return report, nil
}

func lowestID(items []mealie.Entity) string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	sort.Strings(ids)
	return ids[0]
}
