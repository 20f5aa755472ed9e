package handlers

import (
	"context"
	"net/http"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/parser"
	"mealie-organizer/internal/core/runtime"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ParserHandler 管理解析任務的啟動與查詢
type ParserHandler struct {
	controller *runtime.ParserRunController
	config     *config.Config
}

// NewParserHandler 創建解析任務處理器
func NewParserHandler(controller *runtime.ParserRunController, cfg *config.Config) *ParserHandler {
	return &ParserHandler{controller: controller, config: cfg}
}

// Status 回傳目前任務快照
func (h *ParserHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// StartRun 啟動背景 dry-run 解析，同時間僅允許一個任務
func (h *ParserHandler) StartRun(c *gin.Context) {
	snapshot := h.controller.StartDryRun()
	if snapshot == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "run_in_progress",
			"detail":   "A parser run is already active.",
			"snapshot": h.controller.Snapshot(),
		})
		return
	}

	runID, _ := snapshot["run_id"].(string)
	go h.executeRun(runID)
	c.JSON(http.StatusAccepted, snapshot)
}

func (h *ParserHandler) executeRun(runID string) {
	client := mealie.NewClient(h.config)
	// 外掛觸發的解析一律強制 dry-run
	summary, err := parser.NewPipeline(client, h.config, true).Run(context.Background())
	if err != nil {
		h.controller.CompleteFailure(common.ShortText(err.Error(), 320))
		common.LogError("外掛解析任務失敗",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}
	h.controller.CompleteSuccess(summary)
	common.LogInfo("外掛解析任務完成",
		zap.String("run_id", runID),
		zap.Int("parsed_successfully", summary.ParsedSuccessfully),
		zap.Int("requires_review", summary.RequiresReview))
}
