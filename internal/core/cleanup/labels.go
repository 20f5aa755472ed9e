package cleanup

import (
	"context"
	"fmt"
	"strings"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/pkg/common"

	"go.uber.org/zap"
)

// LabelsSyncSummary 標籤同步統計
type LabelsSyncSummary struct {
	Desired  int    `json:"desired"`
	Existing int    `json:"existing"`
	Created  int    `json:"created"`
	Deleted  int    `json:"deleted"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Mode     string `json:"mode"`
	Replace  bool   `json:"replace"`
}

// LabelsSyncReport 標籤同步報告
type LabelsSyncReport struct {
	Summary    LabelsSyncSummary `json:"summary"`
	Actions    []CatalogAction   `json:"actions"`
	SourceFile string            `json:"source_file"`
}

// LabelsSync 群組標籤同步，Replace 時刪除清單外的既有標籤
type LabelsSync struct {
	client   *mealie.Client
	DryRun   bool
	Apply    bool
	Replace  bool
	FilePath string
}

// NewLabelsSync 創建標籤同步作業
func NewLabelsSync(client *mealie.Client) *LabelsSync {
	return &LabelsSync{
		client:   client,
		FilePath: "configs/taxonomy/labels.json",
	}
}

// Run 執行標籤同步並回傳報告
func (l *LabelsSync) Run(ctx context.Context) (*LabelsSyncReport, error) {
	desired, err := LoadCatalogNames(l.FilePath, "labels")
	if err != nil {
		return nil, err
	}
	existing, err := l.client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}

	existingByNorm := map[string]mealie.Label{}
	for _, item := range existing {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		existingByNorm[common.NormalizeName(item.Name)] = item
	}

	executable := l.Apply && !l.DryRun
	created := 0
	skipped := 0
	deleted := 0
	failed := 0
	actions := []CatalogAction{}

	for _, name := range desired {
		norm := common.NormalizeName(name)
		if _, ok := existingByNorm[norm]; ok {
			skipped++
			actions = append(actions, CatalogAction{Action: "skip", Name: name, Reason: "exists"})
			continue
		}
		if executable {
			item, err := l.client.CreateLabel(ctx, name, "")
			if err != nil {
				failed++
				actions = append(actions, CatalogAction{Action: "create", Name: name, Status: "failed", Error: err.Error()})
				continue
			}
			created++
			existingByNorm[norm] = *item
			actions = append(actions, CatalogAction{Action: "create", Name: name, Status: "created"})
		} else {
			actions = append(actions, CatalogAction{Action: "create", Name: name, Status: "planned"})
		}
	}

	if l.Replace {
		desiredNorms := map[string]bool{}
		for _, name := range desired {
			desiredNorms[common.NormalizeName(name)] = true
		}
		for norm, item := range existingByNorm {
			if desiredNorms[norm] {
				continue
			}
			if strings.TrimSpace(item.ID) == "" {
				continue
			}
			if executable {
				if err := l.client.DeleteLabel(ctx, item.ID); err != nil {
					failed++
					actions = append(actions, CatalogAction{Action: "delete", Name: item.Name, Status: "failed", Error: err.Error()})
					continue
				}
				deleted++
				actions = append(actions, CatalogAction{Action: "delete", Name: item.Name, Status: "deleted"})
			} else {
				actions = append(actions, CatalogAction{Action: "delete", Name: item.Name, Status: "planned"})
			}
		}
	}

	report := &LabelsSyncReport{
		Summary: LabelsSyncSummary{
			Desired:  len(desired),
			Existing: len(existing),
			Created:  created,
			Deleted:  deleted,
			Skipped:  skipped,
			Failed:   failed,
			Mode:     reportMode(executable),
			Replace:  l.Replace,
		},
		Actions:    actions,
		SourceFile: l.FilePath,
	}
	common.LogInfo("labels sync finished",
		zap.Int("created", created),
		zap.Int("deleted", deleted),
		zap.Int("failed", failed),
		zap.String("mode", report.Summary.Mode))
	return report, nil
}
