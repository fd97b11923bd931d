package main

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/pdf"
)

type imageView struct {
	PageNumber  int    `json:"pageNumber"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

type jobView struct {
	ID               string       `json:"id"`
	Status           jobs.Status  `json:"status"`
	OriginalFilename string       `json:"originalFilename"`
	TotalPages       *int         `json:"totalPages,omitempty"`
	CompletedPages   int          `json:"completedPages"`
	Progress         int          `json:"progress"`
	Options          *pdf.Options `json:"options,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	ErrorCode        string       `json:"errorCode,omitempty"`
	Error            string       `json:"error,omitempty"`
	Images           []imageView  `json:"images,omitempty"`
	ImageCount       *int         `json:"imageCount,omitempty"`
}

func downloadURL(jobID, filename string) string {
	return "/api/pdf/download/" + url.PathEscape(jobID) + "/" + url.PathEscape(filename)
}

func imageViews(jobID string, pages []jobs.PageArtifact) []imageView {
	views := make([]imageView, 0, len(pages))
	for _, p := range pages {
		views = append(views, imageView{
			PageNumber:  p.PageNumber,
			Filename:    p.Filename,
			DownloadURL: downloadURL(jobID, p.Filename),
			Size:        p.Size,
		})
	}
	return views
}

func newJobView(job *jobs.Job) jobView {
	view := jobView{
		ID:               job.ID,
		Status:           job.Status,
		OriginalFilename: job.OriginalFilename,
		TotalPages:       job.TotalPages,
		CompletedPages:   job.CompletedPages,
		Progress:         job.Progress(),
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
		ErrorCode:        job.ErrorCode,
		Error:            job.Error,
	}
	if job.Status != jobs.StatusPending {
		opts := job.Options
		opts.OutputRoot = ""
		view.Options = &opts
	}
	return view
}

func jobStatusHandler(svc jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, apiResponse{
				Success: false,
				Code:    "INVALID_INPUT",
				Message: "jobId を指定してください。",
			})
			return
		}

		job, err := svc.GetJobStatus(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		view := newJobView(job)
		view.Images = imageViews(job.ID, job.Pages)
		c.JSON(http.StatusOK, apiResponse{
			Success: true,
			Message: "Job status retrieved successfully",
			Data:    view,
		})
	}
}

func jobListHandler(svc jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.GetAllJobs(c.Request.Context())
		if err != nil {
			respondWithError(c, err)
			return
		}

		views := make([]jobView, 0, len(list))
		for _, job := range list {
			view := newJobView(job)
			count := len(job.Pages)
			view.ImageCount = &count
			views = append(views, view)
		}
		c.JSON(http.StatusOK, apiResponse{
			Success: true,
			Message: "Jobs retrieved successfully",
			Data:    views,
		})
	}
}

func jobDownloadHandler(svc jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		filename := c.Param("filename")

		path, err := svc.GetImageFile(c.Request.Context(), jobID, filename)
		if err != nil {
			respondWithError(c, err)
			return
		}

		contentType := "application/octet-stream"
		if format, ok := pdf.ParseFormat(strings.TrimPrefix(filepath.Ext(filename), ".")); ok {
			contentType = format.ContentType()
		}

		encodedName := url.PathEscape(filename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", jobID)
		c.File(path)
	}
}
