package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealie-organizer/internal/api"
	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/runtime"
	"mealie-organizer/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "啟動伴生管理伺服器",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := mealie.NewClient(cfg)
			controller := runtime.NewParserRunController()
			router := api.SetupRouter(cfg, client, controller)

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Plugin.BindHost, cfg.Plugin.BindPort),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// 啟動服務器
			go func() {
				common.LogInfo("啟動外掛伺服器",
					zap.String("addr", srv.Addr),
					zap.String("base_path", cfg.Plugin.BasePath),
				)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					common.LogError("Failed to start server", zap.Error(err))
					os.Exit(1)
				}
			}()

			// 等待中斷信號
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			common.LogInfo("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			common.LogInfo("Server exited")
			return nil
		},
	}
	return cmd
}
