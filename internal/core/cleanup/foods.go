package cleanup

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

const fuzzySimilarityThreshold = 0.92

// FoodMergeAction 食材合併動作
type FoodMergeAction struct {
	SourceID       string `json:"source_id"`
	SourceName     string `json:"source_name"`
	TargetID       string `json:"target_id"`
	TargetName     string `json:"target_name"`
	GroupID        string `json:"group_id"`
	NormalizedName string `json:"normalized_name"`
	SourceUsage    int    `json:"source_usage"`
	TargetUsage    int    `json:"target_usage"`
}

// FuzzyCandidate 相似但未完全重複的食材組合，僅供回報
type FuzzyCandidate struct {
	GroupID    string  `json:"group_id"`
	FoodAID    string  `json:"food_a_id"`
	FoodAName  string  `json:"food_a_name"`
	FoodBID    string  `json:"food_b_id"`
	FoodBName  string  `json:"food_b_name"`
	Similarity float64 `json:"similarity"`
}

// AttemptedAction 一筆嘗試過的合併紀錄，計入報告
type AttemptedAction struct {
	SourceID       string `json:"source_id"`
	SourceName     string `json:"source_name"`
	TargetID       string `json:"target_id"`
	TargetName     string `json:"target_name"`
	GroupID        string `json:"group_id,omitempty"`
	NormalizedName string `json:"normalized_name,omitempty"`
	SourceUsage    int    `json:"source_usage,omitempty"`
	TargetUsage    int    `json:"target_usage,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Mode           string `json:"mode"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// FoodsCleanupSummary 食材清理統計
type FoodsCleanupSummary struct {
	FoodsTotal           int    `json:"foods_total"`
	DuplicateGroups      int    `json:"duplicate_groups"`
	MergeCandidatesTotal int    `json:"merge_candidates_total"`
	ActionsAttempted     int    `json:"actions_attempted"`
	ActionsApplied       int    `json:"actions_applied"`
	ActionsFailed        int    `json:"actions_failed"`
	CheckpointSkipped    int    `json:"checkpoint_skipped"`
	Mode                 string `json:"mode"`
	AllowFuzzy           bool   `json:"allow_fuzzy"`
}

// FoodsCleanupReport 食材清理報告
type FoodsCleanupReport struct {
	Summary          FoodsCleanupSummary `json:"summary"`
	AttemptedActions []AttemptedAction   `json:"attempted_actions"`
	FuzzyCandidates  []FuzzyCandidate    `json:"fuzzy_candidates"`
	CheckpointFile   string              `json:"checkpoint_file"`
}

// FoodsCleanup 食材去重清理
type FoodsCleanup struct {
	client        *mealie.Client
	DryRun        bool
	Apply         bool
	MaxActions    int
	ReportFile    string
	CheckpointDir string
	AllowFuzzy    bool
}

// NewFoodsCleanup 創建食材清理作業
func NewFoodsCleanup(client *mealie.Client) *FoodsCleanup {
	return &FoodsCleanup{
		client:        client,
		MaxActions:    250,
		ReportFile:    "reports/foods_cleanup_report.json",
		CheckpointDir: "cache/maintenance",
	}
}

func (f *FoodsCleanup) checkpointPath() string {
	return filepath.Join(f.CheckpointDir, "foods_cleanup_checkpoint.json")
}

// BuildFoodUsage 掃描所有食譜的食材引用計算使用次數
func BuildFoodUsage(recipes []map[string]interface{}) map[string]int {
	usage := map[string]int{}
	count := func(items interface{}) {
		list, ok := items.([]interface{})
		if !ok {
			return
		}
		for _, item := range list {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			food, ok := entry["food"].(map[string]interface{})
			if !ok {
				continue
			}
			if id, ok := food["id"].(string); ok && id != "" {
				usage[id]++
			}
		}
	}
	for _, recipe := range recipes {
		count(recipe["recipeIngredient"])
		count(recipe["ingredients"])
	}
	return usage
}

type foodGroupKey struct {
	GroupID        string
	NormalizedName string
}

// buildDuplicateGroups 以群組 id 加正規化名稱分組，僅保留有重複的組
func buildDuplicateGroups(foods []mealie.Entity) map[foodGroupKey][]mealie.Entity {
	groups := map[foodGroupKey][]mealie.Entity{}
	for _, food := range foods {
		if food.ID == "" || food.Name == "" {
			continue
		}
		normalized := common.NormalizeName(food.Name)
		if normalized == "" {
			continue
		}
		key := foodGroupKey{GroupID: food.GroupID, NormalizedName: normalized}
		groups[key] = append(groups[key], food)
	}
	for key, members := range groups {
		if len(members) <= 1 {
			delete(groups, key)
		}
	}
	return groups
}

// chooseCanonical 使用次數最高者為正典，同票取 id 最小
func chooseCanonical(candidates []mealie.Entity, usage map[string]int) mealie.Entity {
	ranked := make([]mealie.Entity, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		ui, uj := usage[ranked[i].ID], usage[ranked[j].ID]
		if ui != uj {
			return ui > uj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked[0]
}

// BuildMergePlan 為每個重複組的非正典成員產生一筆合併動作
func BuildMergePlan(foods []mealie.Entity, usage map[string]int) []FoodMergeAction {
	var plan []FoodMergeAction
	for key, candidates := range buildDuplicateGroups(foods) {
		canonical := chooseCanonical(candidates, usage)
		for _, item := range candidates {
			if item.ID == canonical.ID {
				continue
			}
			plan = append(plan, FoodMergeAction{
				SourceID:       item.ID,
				SourceName:     item.Name,
				TargetID:       canonical.ID,
				TargetName:     canonical.Name,
				GroupID:        key.GroupID,
				NormalizedName: key.NormalizedName,
				SourceUsage:    usage[item.ID],
				TargetUsage:    usage[canonical.ID],
			})
		}
	}
	sort.Slice(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.NormalizedName != b.NormalizedName {
			return a.NormalizedName < b.NormalizedName
		}
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		return a.SourceID < b.SourceID
	})
	return plan
}

// BuildFuzzyCandidates 同群組內相似度達門檻的配對，排除完全重複
func (f *FoodsCleanup) BuildFuzzyCandidates(foods []mealie.Entity) []FuzzyCandidate {
	if !f.AllowFuzzy {
		return nil
	}
	byGroup := map[string][]mealie.Entity{}
	for _, food := range foods {
		if food.ID == "" || food.Name == "" {
			continue
		}
		byGroup[food.GroupID] = append(byGroup[food.GroupID], food)
	}

	var results []FuzzyCandidate
	for groupID, members := range byGroup {
		type pair struct {
			id, name, norm string
		}
		normalized := make([]pair, 0, len(members))
		for _, item := range members {
			normalized = append(normalized, pair{id: item.ID, name: item.Name, norm: common.NormalizeName(item.Name)})
		}
		for i := range normalized {
			if normalized[i].norm == "" {
				continue
			}
			for j := i + 1; j < len(normalized); j++ {
				if normalized[j].norm == "" || normalized[i].norm == normalized[j].norm {
					continue
				}
				ratio := common.SimilarityRatio(normalized[i].norm, normalized[j].norm)
				if ratio >= fuzzySimilarityThreshold {
					results = append(results, FuzzyCandidate{
						GroupID:    groupID,
						FoodAID:    normalized[i].id,
						FoodAName:  normalized[i].name,
						FoodBID:    normalized[j].id,
						FoodBName:  normalized[j].name,
						Similarity: math.Round(ratio*10000) / 10000,
					})
				}
			}
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].FoodAName != results[j].FoodAName {
			return results[i].FoodAName < results[j].FoodAName
		}
		return results[i].FoodBName < results[j].FoodBName
	})
	return results
}

// Run 執行食材清理並寫出報告
func (f *FoodsCleanup) Run(ctx context.Context) (*FoodsCleanupReport, error) {
	foods, err := f.client.ListFoods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	recipes, err := f.client.ListRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}

	usage := BuildFoodUsage(recipes)
	plan := BuildMergePlan(foods, usage)
	fuzzy := f.BuildFuzzyCandidates(foods)
	checkpoint := LoadCheckpoint(f.checkpointPath())

	executable := f.Apply && !f.DryRun
	maxActions := f.MaxActions
	if maxActions < 1 {
		maxActions = 1
	}

	applied := 0
	failed := 0
	skippedCheckpoint := 0
	attempted := []AttemptedAction{}

	mode := "plan"
	if executable {
		mode = "apply"
	}

	for _, action := range plan {
		// 檢查點先於動作上限判斷，跳過不消耗額度
		if checkpoint.Contains(action.SourceID) {
			skippedCheckpoint++
			continue
		}
		if executable && applied >= maxActions {
			break
		}

		entry := AttemptedAction{
			SourceID:       action.SourceID,
			SourceName:     action.SourceName,
			TargetID:       action.TargetID,
			TargetName:     action.TargetName,
			GroupID:        action.GroupID,
			NormalizedName: action.NormalizedName,
			SourceUsage:    action.SourceUsage,
			TargetUsage:    action.TargetUsage,
			Mode:           mode,
		}

		if executable {
			if err := f.client.MergeFoods(ctx, action.SourceID, action.TargetID); err != nil {
				failed++
				entry.Status = "failed"
				entry.Error = err.Error()
				common.LogWarn("food merge failed",
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

	report := &FoodsCleanupReport{
		Summary: FoodsCleanupSummary{
			FoodsTotal:           len(foods),
			DuplicateGroups:      len(buildDuplicateGroups(foods)),
			MergeCandidatesTotal: len(plan),
			ActionsAttempted:     len(attempted),
			ActionsApplied:       applied,
			ActionsFailed:        failed,
			CheckpointSkipped:    skippedCheckpoint,
			Mode:                 reportMode(executable),
			AllowFuzzy:           f.AllowFuzzy,
		},
		AttemptedActions: attempted,
		FuzzyCandidates:  fuzzy,
		CheckpointFile:   checkpoint.Path(),
	}

	if err := os.MkdirAll(filepath.Dir(f.ReportFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := common.WriteJSONFile(f.ReportFile, report); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	common.LogInfo("foods cleanup report written",
		zap.String("path", f.ReportFile),
		zap.Int("applied", applied),
		zap.Int("failed", failed),
		zap.Int("checkpoint_skipped", skippedCheckpoint))
	return report, nil
}

func reportMode(executable bool) string {
	if executable {
		return "apply"
	}
	return "audit"
}
