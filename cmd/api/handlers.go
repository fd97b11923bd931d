package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/pdf"
)

const apiVersion = "1.0.0"

var startedAt = time.Now()

// jobService は HTTP 層から使うジョブ操作です。
type jobService interface {
	Convert(ctx context.Context, sub jobs.Submission) (*jobs.Outcome, error)
	Submit(ctx context.Context, sub jobs.Submission) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (*jobs.Job, error)
	GetAllJobs(ctx context.Context) ([]*jobs.Job, error)
	GetImageFile(ctx context.Context, jobID, filename string) (string, error)
}

// uploadStore はアップロードされたPDFを検査して保存します。
type uploadStore interface {
	Store(ctx context.Context, file *multipart.FileHeader) (*pdf.StoredUpload, error)
}

// apiResponse は全エンドポイント共通のレスポンス形式です。
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// convertOptions は同期/非同期切り替えとアップロード上限の設定です。
type convertOptions struct {
	MaxBodyBytes        int64
	AsyncThresholdBytes int64
	AsyncThresholdPages int
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "API is healthy",
		Data: gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(startedAt).Seconds(),
			"version":   apiVersion,
		},
	})
}

func handleAPIInfo(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, apiResponse{
			Success: true,
			Message: "PDF to Image Conversion API",
			Data: gin.H{
				"version":     apiVersion,
				"description": "Convert PDF files to images (JPG/PNG)",
				"endpoints": gin.H{
					"POST /api/pdf/convert":                  "Upload and convert PDF to images",
					"GET /api/pdf/status/:jobId":             "Get conversion job status",
					"GET /api/pdf/download/:jobId/:filename": "Download converted image",
					"GET /api/pdf/jobs":                      "Get all jobs (admin)",
					"GET /api/health":                        "Health check",
				},
				"supportedFormats": []string{string(pdf.FormatJPG), string(pdf.FormatPNG)},
				"maxFileSize":      fmt.Sprintf("%dMB", cfg.MaxFileSize/1024/1024),
				"maxPages":         cfg.MaxPages,
			},
		})
	}
}

// convertHandler は POST /api/pdf/convert のハンドラーを返します。
// 閾値を超えるアップロードはキューに投入して 202 を返し、それ以外はその場で変換します。
func convertHandler(svc jobService, uploader uploadStore, opts convertOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.MaxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxBodyBytes)
		}

		file, err := c.FormFile("pdf")
		if err != nil {
			if isBodyTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, apiResponse{
					Success: false,
					Code:    "LIMIT_EXCEEDED",
					Message: "ファイルサイズが上限を超えています。",
				})
				return
			}
			c.JSON(http.StatusBadRequest, apiResponse{
				Success: false,
				Code:    "INVALID_INPUT",
				Message: "PDFファイルがアップロードされていません。pdf フィールドで送信してください。",
			})
			return
		}

		stored, err := uploader.Store(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		sub := jobs.Submission{
			SourcePath:       stored.Path,
			OriginalFilename: stored.Meta.Name,
			Overrides:        parseOverrides(c),
			SourcePages:      stored.Meta.Pages,
		}

		if shouldProcessAsync(stored.Meta, opts) {
			jobID, err := svc.Submit(c.Request.Context(), sub)
			if err != nil {
				_ = os.Remove(stored.Path)
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, apiResponse{
				Success: true,
				Message: "PDF conversion started",
				Data: gin.H{
					"jobId":     jobID,
					"status":    jobs.StatusPending,
					"statusUrl": "/api/pdf/status/" + jobID,
				},
			})
			return
		}

		outcome, err := svc.Convert(c.Request.Context(), sub)
		if err != nil {
			_ = os.Remove(stored.Path)
			respondWithError(c, err)
			return
		}
		if !outcome.Success {
			c.JSON(http.StatusInternalServerError, apiResponse{
				Success: false,
				Message: outcome.Message,
				Code:    outcome.ErrorCode,
				Error:   outcome.Error,
				Data:    gin.H{"jobId": outcome.JobID},
			})
			return
		}

		c.JSON(http.StatusOK, apiResponse{
			Success: true,
			Message: outcome.Message,
			Data: gin.H{
				"jobId":      outcome.JobID,
				"totalPages": outcome.TotalPages,
				"images":     imageViews(outcome.JobID, outcome.Pages),
			},
		})
	}
}

// parseOverrides はフォームの変換オプションを読み取ります。
// 数値として読めない値は未指定として扱い、範囲の判定は変換側に任せます。
func parseOverrides(c *gin.Context) pdf.Overrides {
	var o pdf.Overrides
	o.Format = strings.TrimSpace(c.PostForm("format"))
	if v, err := strconv.Atoi(strings.TrimSpace(c.PostForm("quality"))); err == nil {
		o.Quality = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(c.PostForm("density"))); err == nil {
		o.Density = v
	}
	return o
}

func shouldProcessAsync(meta pdf.SourceFileMeta, opts convertOptions) bool {
	if opts.AsyncThresholdBytes > 0 && meta.Size > opts.AsyncThresholdBytes {
		return true
	}
	if opts.AsyncThresholdPages > 0 && meta.Pages > opts.AsyncThresholdPages {
		return true
	}
	return false
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func respondWithError(c *gin.Context, err error) {
	var pdfErr *pdf.Error
	var jobErr *jobs.Error
	switch {
	case errors.As(err, &pdfErr):
		status := http.StatusBadRequest
		if pdfErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, apiResponse{
			Success: false,
			Code:    pdfErr.Code,
			Message: pdfErr.Message,
		})
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, apiResponse{
			Success: false,
			Code:    jobs.CodeOf(err),
			Message: notFoundMessage(jobs.CodeOf(err)),
		})
	case errors.As(err, &jobErr) && jobErr.Code == jobs.CodeInvalidInput:
		c.JSON(http.StatusBadRequest, apiResponse{
			Success: false,
			Code:    jobErr.Code,
			Message: "入力ファイルを読み込めませんでした。",
			Error:   jobErr.Message,
		})
	case errors.Is(err, jobs.ErrDispatcherClosed):
		c.JSON(http.StatusServiceUnavailable, apiResponse{
			Success: false,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "サーバーが停止処理中です。しばらくしてから再度お試しください。",
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, apiResponse{
			Success: false,
			Code:    "REQUEST_CANCELED",
			Message: "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, apiResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Message: "サーバー内部でエラーが発生しました。",
		})
	}
}

func notFoundMessage(code string) string {
	if code == jobs.CodeImageNotFound {
		return "Image not found"
	}
	return "Job not found"
}
