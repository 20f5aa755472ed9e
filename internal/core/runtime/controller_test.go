package runtime

import (
	"testing"

	"mealie-organizer/internal/core/parser"

	"github.com/stretchr/testify/assert"
)

func TestControllerLifecycle(t *testing.T) {
	controller := NewParserRunController()

	snap := controller.Snapshot()
	assert.Equal(t, StatusIdle, snap["status"])
	assert.Nil(t, snap["run_id"])
	assert.Nil(t, snap["summary"])

	started := controller.StartDryRun()
	assert.NotNil(t, started)
	assert.Equal(t, StatusRunning, started["status"])
	assert.NotEmpty(t, started["run_id"])
	assert.NotNil(t, started["started_at"])
	assert.Nil(t, started["finished_at"])

	// 執行中不允許再啟動
	assert.Nil(t, controller.StartDryRun())

	controller.CompleteSuccess(&parser.Summary{
		TotalCandidates:    10,
		ParsedSuccessfully: 8,
		RequiresReview:     2,
	})

	snap = controller.Snapshot()
	assert.Equal(t, StatusSucceeded, snap["status"])
	assert.NotNil(t, snap["finished_at"])
	summary, ok := snap["summary"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, 10, summary["total_candidates"])
	assert.Equal(t, 8, summary["parsed_successfully"])
	assert.Equal(t, 2, summary["requires_review"])

	// 結束後可以再啟動新任務，run_id 必須換新
	again := controller.StartDryRun()
	assert.NotNil(t, again)
	assert.NotEqual(t, started["run_id"], again["run_id"])
	assert.Nil(t, again["summary"])
	assert.Nil(t, again["error"])
}

func TestControllerFailure(t *testing.T) {
	controller := NewParserRunController()
	assert.NotNil(t, controller.StartDryRun())

	controller.CompleteFailure("mealie unreachable")

	snap := controller.Snapshot()
	assert.Equal(t, StatusFailed, snap["status"])
	assert.Equal(t, "mealie unreachable", snap["error"])
	assert.Nil(t, snap["summary"])
}
