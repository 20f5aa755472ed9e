package api

import (
	"net/http"
	"time"

	"mealie-organizer/internal/api/handlers"
	"mealie-organizer/internal/api/middleware"
	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/runtime"
	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 設置外掛伺服器路由
func SetupRouter(cfg *config.Config, client *mealie.Client, controller *runtime.ParserRunController) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.String("base_path", cfg.Plugin.BasePath),
		zap.Strings("token_cookies", cfg.Plugin.TokenCookies),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New()) // 自動生成請求 ID

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 外掛回應一律不可被快取
	router.Use(func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	})

	authHandler := handlers.NewAuthHandler(client, cfg)
	parserHandler := handlers.NewParserHandler(controller, cfg)
	assetsHandler := handlers.NewAssetsHandler(cfg.Plugin.BasePath)

	base := router.Group(cfg.Plugin.BasePath)
	{
		apiGroup := base.Group("/api/v1")
		{
			apiGroup.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"ok": true})
			})
			apiGroup.GET("/auth/context", authHandler.GetAuthContext)

			adminGroup := apiGroup.Group("", authHandler.RequireAdmin())
			{
				adminGroup.GET("/parser/status", parserHandler.Status)
				adminGroup.POST("/parser/runs", parserHandler.StartRun)
			}
		}

		staticGroup := base.Group("/static")
		{
			staticGroup.GET("/injector.js", assetsHandler.InjectorJS)
			staticGroup.GET("/page.css", assetsHandler.PageCSS)
			staticGroup.GET("/page.js", assetsHandler.PageJS)
		}

		base.GET("/page", authHandler.RequireAdmin(), assetsHandler.Page)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "not_found",
			"detail": "Unknown path: " + c.Request.URL.Path,
		})
	})

	common.LogInfo("Router setup completed successfully",
		zap.String("base_path", cfg.Plugin.BasePath),
		zap.Int("bind_port", cfg.Plugin.BindPort),
	)

	return router
}
