package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vinyltube/internal/job"
	"vinyltube/internal/lifecycle"
	"vinyltube/internal/media"
	"vinyltube/internal/ratelimit"
	"vinyltube/internal/validate"
)

type extractRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL     string `json:"url"`
	Variant string `json:"variant"`
	Format  string `json:"format"`
}

type downloadResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

type statusResponse struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
	FailureReason string `json:"failure_reason,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
}

// API wires the admission gate, the coordinator and the lifecycle manager to
// the HTTP boundary.
type API struct {
	jobs           *job.Coordinator
	files          *lifecycle.Manager
	limiter        *ratelimit.Limiter
	extractor      media.Extractor
	extractTimeout time.Duration
	startedAt      time.Time
}

func NewAPI(jobs *job.Coordinator, files *lifecycle.Manager, limiter *ratelimit.Limiter, extractor media.Extractor, extractTimeout time.Duration) *API {
	return &API{
		jobs:           jobs,
		files:          files,
		limiter:        limiter,
		extractor:      extractor,
		extractTimeout: extractTimeout,
		startedAt:      time.Now(),
	}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	grp := router.Group("/api")
	{
		grp.POST("/extract", a.Extract)
		grp.POST("/download", a.Download)
		grp.GET("/download-status/:id", a.DownloadStatus)
		grp.DELETE("/download/:id", a.CancelDownload)
		grp.GET("/file/:id", a.ServeFile)
		grp.GET("/health", a.Health)
		grp.GET("/stats", a.GetStats)
		grp.GET("/files", a.ListFiles)
		grp.DELETE("/files/:id", a.DeleteFile)
		grp.POST("/cleanup", a.Cleanup)
	}
}

// admit applies the per-client rate limit and writes the 429 response on
// denial. Returns false when the request must not proceed.
func (a *API) admit(c *gin.Context) bool {
	d := a.limiter.Admit(c.ClientIP())
	if d.Allowed {
		return true
	}
	retryAfter := int(d.RetryAfter.Seconds()) + 1
	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	log.Warn().Str("client_ip", c.ClientIP()).Dur("retry_after", d.RetryAfter).Msg("rate limit exceeded")
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retry_after_seconds": retryAfter})
	return false
}

// Extract returns source metadata synchronously; no job is created.
func (a *API) Extract(c *gin.Context) {
	if !a.admit(c) {
		return
	}
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	normalized, err := validate.Normalize(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.extractTimeout)
	defer cancel()
	probe, err := a.extractor.Info(ctx, normalized)
	if err != nil {
		log.Warn().Str("url", normalized).Err(err).Msg("metadata extraction failed")
		if errors.Is(err, media.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "extraction timed out"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "extraction failed"})
		return
	}
	c.JSON(http.StatusOK, probe)
}

// Download admits the request and submits a job; the caller polls for state.
func (a *API) Download(c *gin.Context) {
	if !a.admit(c) {
		return
	}
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	normalized, err := validate.Normalize(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	format := media.FormatVideo
	if strings.EqualFold(req.Format, string(media.FormatAudio)) {
		format = media.FormatAudio
	}

	id, err := a.jobs.Submit(job.Request{URL: normalized, Variant: req.Variant, Format: format})
	if err != nil {
		if errors.Is(err, job.ErrOverloaded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy, try again later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submit failed"})
		return
	}
	c.JSON(http.StatusAccepted, downloadResponse{JobID: id, State: string(job.StatePending)})
}

// DownloadStatus reports the job snapshot.
func (a *API) DownloadStatus(c *gin.Context) {
	snapshot, err := a.jobs.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, a.toStatusResponse(snapshot))
}

// CancelDownload requests cancellation of a running job.
func (a *API) CancelDownload(c *gin.Context) {
	id := c.Param("id")
	if err := a.jobs.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// ServeFile streams a registered file, pinning it in-use for the lifetime of
// the stream so a concurrent sweep cannot remove it mid-read.
func (a *API) ServeFile(c *gin.Context) {
	rec, ok := a.files.Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	a.files.MarkInUse(rec.Path)
	defer a.files.ClearInUse(rec.Path)

	c.FileAttachment(rec.Path, sanitizeFilename(rec.Name))
}

// Health reports process health and external tool availability.
func (a *API) Health(c *gin.Context) {
	tools := media.Tools()
	healthy := true
	for _, ok := range tools {
		healthy = healthy && ok
	}
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"dependencies":   tools,
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
	})
}

// GetStats reports the lifecycle manager's view of managed files.
func (a *API) GetStats(c *gin.Context) {
	s := a.files.Stats()
	c.JSON(http.StatusOK, gin.H{
		"file_count":        s.FileCount,
		"total_bytes":       s.TotalBytes,
		"oldest_created_at": s.OldestCreatedAt,
		"uptime_seconds":    time.Since(a.startedAt).Seconds(),
	})
}

// ListFiles returns all tracked files, newest first.
func (a *API) ListFiles(c *gin.Context) {
	files := a.files.List()
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

// DeleteFile removes one tracked file on demand.
func (a *API) DeleteFile(c *gin.Context) {
	rec, ok := a.files.Resolve(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err := a.files.Delete(rec.Path); err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		log.Warn().Str("name", rec.Name).Err(err).Msg("delete file failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted", "name": rec.Name})
}

// Cleanup triggers a sweep outside the normal schedule.
func (a *API) Cleanup(c *gin.Context) {
	removed := a.files.Sweep()
	pruned := a.limiter.Prune()
	c.JSON(http.StatusOK, gin.H{"removed_files": removed, "pruned_clients": pruned})
}

func (a *API) toStatusResponse(j job.Job) statusResponse {
	resp := statusResponse{
		ID:            j.ID,
		State:         string(j.State),
		CreatedAt:     j.CreatedAt.UTC().Format(time.RFC3339),
		FailureReason: j.FailureReason,
	}
	if j.State == job.StateCompleted && j.OutputPath != "" {
		if rec, ok := a.files.Resolve(filepath.Base(j.OutputPath)); ok {
			resp.FileName = rec.Name
			resp.DownloadURL = "/api/file/" + rec.Name
		}
	}
	return resp
}

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename strips characters that break attachment headers or
// client filesystems.
func sanitizeFilename(name string) string {
	return invalidFilenameChars.ReplaceAllString(name, "_")
}
