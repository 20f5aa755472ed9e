package runtime

import (
	"sync"
	"time"

	"mealie-organizer/internal/core/parser"

	"github.com/google/uuid"
)

// 解析任務狀態
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ParserRunController 確保同時間只有一個解析任務在執行
type ParserRunController struct {
	mu         sync.Mutex
	status     string
	runID      string
	startedAt  *time.Time
	finishedAt *time.Time
	summary    *parser.Summary
	errText    string
}

// NewParserRunController 創建解析任務控制器
func NewParserRunController() *ParserRunController {
	return &ParserRunController{status: StatusIdle}
}

func (c *ParserRunController) snapshotLocked() map[string]interface{} {
	snap := map[string]interface{}{
		"status":      c.status,
		"run_id":      nil,
		"started_at":  nil,
		"finished_at": nil,
		"summary":     nil,
		"error":       nil,
	}
	if c.runID != "" {
		snap["run_id"] = c.runID
	}
	if c.startedAt != nil {
		snap["started_at"] = c.startedAt.UTC().Format(time.RFC3339)
	}
	if c.finishedAt != nil {
		snap["finished_at"] = c.finishedAt.UTC().Format(time.RFC3339)
	}
	if c.summary != nil {
		snap["summary"] = map[string]interface{}{
			"total_candidates":    c.summary.TotalCandidates,
			"parsed_successfully": c.summary.ParsedSuccessfully,
			"requires_review":     c.summary.RequiresReview,
		}
	}
	if c.errText != "" {
		snap["error"] = c.errText
	}
	return snap
}

// Snapshot 回傳目前狀態的複本
func (c *ParserRunController) Snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// StartDryRun 嘗試啟動新任務，若已有任務執行中則回傳 nil
func (c *ParserRunController) StartDryRun() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		return nil
	}
	now := time.Now()
	c.status = StatusRunning
	c.runID = uuid.NewString()
	c.startedAt = &now
	c.finishedAt = nil
	c.summary = nil
	c.errText = ""
	return c.snapshotLocked()
}

// CompleteSuccess 標記任務成功並記錄摘要
func (c *ParserRunController) CompleteSuccess(summary *parser.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.status = StatusSucceeded
	c.finishedAt = &now
	c.summary = summary
	c.errText = ""
}

// CompleteFailure 標記任務失敗並記錄錯誤訊息
func (c *ParserRunController) CompleteFailure(errText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.status = StatusFailed
	c.finishedAt = &now
	c.errText = errText
}
