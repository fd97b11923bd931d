// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/yourusername/pdf2img/internal/app"
	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "pdf2img-api",
	})

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	rt, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up jobs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Manager.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start job manager")
	}

	router := newRouter(cfg, logger, rt.Manager, rt.Uploader)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("mode", cfg.GinMode).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	// 実行中の変換が終わるまで待つ
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("job runtime shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

// newRouter はミドルウェアとルーティングを設定した Gin エンジンを返します。
func newRouter(cfg *config.Config, logger zerolog.Logger, svc jobService, uploader uploadStore) *gin.Engine {
	router := gin.New()
	router.Use(logging.GinMiddleware(logger), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, svc, uploader)
	return router
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, svc jobService, uploader uploadStore) {
	router.GET("/health", handleHealth)

	var maxBody int64
	if cfg.MaxFileSize > 0 {
		// マルチパートのヘッダー分だけ余裕を持たせる
		maxBody = cfg.MaxFileSize + 1<<20
	}

	api := router.Group("/api")
	{
		api.GET("", handleAPIInfo(cfg))
		api.GET("/health", handleHealth)

		pdfRoutes := api.Group("/pdf")
		{
			pdfRoutes.POST("/convert", convertHandler(svc, uploader, convertOptions{
				MaxBodyBytes:        maxBody,
				AsyncThresholdBytes: cfg.AsyncThresholdBytes,
				AsyncThresholdPages: cfg.AsyncThresholdPages,
			}))
			pdfRoutes.GET("/status/:jobId", jobStatusHandler(svc))
			pdfRoutes.GET("/download/:jobId/:filename", jobDownloadHandler(svc))
			pdfRoutes.GET("/jobs", jobListHandler(svc))
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiResponse{
			Success: false,
			Code:    "ROUTE_NOT_FOUND",
			Message: "Route " + c.Request.URL.Path + " not found",
		})
	})
}
