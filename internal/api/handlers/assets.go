package handlers

import (
	"net/http"
	"strings"

	"mealie-organizer/internal/api/static"

	"github.com/gin-gonic/gin"
)

// AssetsHandler 提供外掛頁面與注入腳本
type AssetsHandler struct {
	basePath string
}

// NewAssetsHandler 創建靜態資產處理器
func NewAssetsHandler(basePath string) *AssetsHandler {
	return &AssetsHandler{basePath: basePath}
}

func (h *AssetsHandler) render(template string) string {
	return strings.ReplaceAll(template, "__BASE_PATH__", h.basePath)
}

// InjectorJS 注入 Mealie 導航列按鈕的腳本
func (h *AssetsHandler) InjectorJS(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(h.render(static.InjectorJS)))
}

// PageCSS 外掛頁面樣式
func (h *AssetsHandler) PageCSS(c *gin.Context) {
	c.Data(http.StatusOK, "text/css; charset=utf-8", []byte(static.PageCSS))
}

// PageJS 外掛頁面腳本
func (h *AssetsHandler) PageJS(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(h.render(static.PageJS)))
}

// Page 外掛主頁（僅限管理員）
func (h *AssetsHandler) Page(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(h.render(static.PageHTML)))
}
