package handlers

import (
	"context"
	"net/http"
	"strings"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// AuthContext 轉發 Mealie 憑證驗證後的結果
type AuthContext struct {
	Authenticated  bool    `json:"authenticated"`
	Admin          bool    `json:"admin"`
	Username       *string `json:"username"`
	FullName       *string `json:"full_name"`
	AuthError      *string `json:"auth_error"`
	AuthStatusCode int     `json:"auth_status_code,omitempty"`
	AuthDetail     string  `json:"auth_detail,omitempty"`
}

// AuthHandler 以上游 Mealie 驗證請求憑證
type AuthHandler struct {
	client      *mealie.Client
	cookieNames []string
	config      *config.Config
}

// NewAuthHandler 創建認證處理器
func NewAuthHandler(client *mealie.Client, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		client:      client,
		cookieNames: cfg.Plugin.TokenCookies,
		config:      cfg,
	}
}

func tokenFromAuthHeader(value string) string {
	const prefix = "bearer "
	if !strings.HasPrefix(strings.ToLower(value), prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}

func (h *AuthHandler) tokenFromRequest(c *gin.Context) string {
	if token := tokenFromAuthHeader(c.GetHeader("Authorization")); token != "" {
		return token
	}
	for _, name := range h.cookieNames {
		value, err := c.Cookie(name)
		if err != nil {
			continue
		}
		if token := strings.TrimSpace(value); token != "" {
			return token
		}
	}
	return ""
}

func strPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// resolve 取出請求中的憑證並向 Mealie 查詢目前使用者
func (h *AuthHandler) resolve(c *gin.Context) AuthContext {
	token := h.tokenFromRequest(c)
	if token == "" {
		missing := "missing_token"
		return AuthContext{AuthError: &missing}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Plugin.AuthTimeout)
	defer cancel()

	user, status, err := h.client.SelfWithToken(ctx, token)
	if err != nil {
		statusCode, errorCode := classifyAuthFailure(status)
		return AuthContext{
			AuthError:      &errorCode,
			AuthStatusCode: statusCode,
			AuthDetail:     common.ShortText(err.Error(), 320),
		}
	}

	admin, _ := user["admin"].(bool)
	username, _ := user["username"].(string)
	fullName, _ := user["fullName"].(string)
	return AuthContext{
		Authenticated: true,
		Admin:         admin,
		Username:      strPtr(username),
		FullName:      strPtr(fullName),
	}
}

// 401/403 表示憑證無效，其它失敗歸類為上游錯誤
func classifyAuthFailure(upstreamStatus int) (int, string) {
	if upstreamStatus == http.StatusUnauthorized || upstreamStatus == http.StatusForbidden {
		return http.StatusUnauthorized, "invalid_token"
	}
	return http.StatusBadGateway, "mealie_auth_failed"
}

// GetAuthContext 回傳目前請求的認證狀態
func (h *AuthHandler) GetAuthContext(c *gin.Context) {
	c.JSON(http.StatusOK, h.resolve(c))
}

// RequireAdmin 僅允許通過驗證的管理員繼續
func (h *AuthHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx := h.resolve(c)
		if !authCtx.Authenticated {
			errorCode := "missing_token"
			if authCtx.AuthError != nil {
				errorCode = *authCtx.AuthError
			}
			if errorCode == "missing_token" || errorCode == "invalid_token" {
				detail := "Provide a valid Mealie bearer token or session cookie."
				if errorCode == "missing_token" {
					detail = "Provide a bearer token or valid session cookie."
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":  errorCode,
					"detail": detail,
				})
				return
			}
			detail := authCtx.AuthDetail
			if detail == "" {
				detail = "Failed to validate Mealie session."
			}
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"error":  "mealie_auth_failed",
				"detail": detail,
			})
			return
		}
		if !authCtx.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "admin_required",
				"detail": "This plugin endpoint requires an admin user.",
			})
			return
		}
		c.Next()
	}
}
