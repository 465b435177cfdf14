package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"memesync/config"
	"memesync/store"
	"memesync/task"
)

// allowedUploadExts is the input allowlist: GIFs plus the common short-clip
// containers.
var allowedUploadExts = map[string]bool{
	".gif":  true,
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
}

type Handler struct {
	taskManager *task.Manager
	store       store.Store
	cfg         *config.Config
}

func NewHandler(tm *task.Manager, st store.Store, cfg *config.Config) *Handler {
	return &Handler{
		taskManager: tm,
		store:       st,
		cfg:         cfg,
	}
}

// handleUpload accepts the face media and creates the job record. Generation
// is a separate call so the user can preview the upload first.
func (h *Handler) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedUploadExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type %q, use a GIF or short video", ext)})
		return
	}
	if h.cfg.MaxUploadSize > 0 && file.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	jobID := uuid.NewString()
	jobDir := filepath.Join(h.cfg.TempDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create job directory"})
		return
	}
	inputPath := filepath.Join(jobDir, "upload"+ext)
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}

	st := store.JobState{
		ID:        jobID,
		Status:    store.StatusUploaded,
		InputPath: inputPath,
		CreatedAt: time.Now(),
	}
	if err := h.store.Put(c.Request.Context(), st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not persist job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":      jobID,
		"preview_url": "/output/preview/" + jobID,
	})
}

// handlePreview serves the uploaded asset back, so the frontend can show
// what the GIF will be based on before triggering generation.
func (h *Handler) handlePreview(c *gin.Context) {
	st, err := h.store.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if _, statErr := os.Stat(st.InputPath); statErr != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "uploaded file no longer available"})
		return
	}
	c.File(st.InputPath)
}

type GenerateRequest struct {
	JobID string `json:"job_id" binding:"required"`
	Text  string `json:"text"`
}

// handleGenerate validates the text and enqueues the pipeline run.
func (h *Handler) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text cannot be empty"})
		return
	}
	if h.cfg.MaxTextLength > 0 && len([]rune(text)) > h.cfg.MaxTextLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("text too long, maximum is %d characters", h.cfg.MaxTextLength)})
		return
	}

	taskRef, err := h.taskManager.Submit(c.Request.Context(), req.JobID, text)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found, upload a file first"})
		return
	case errors.Is(err, task.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "job is already being processed"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue job", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskRef})
}

type StatusResponse struct {
	Status    store.Status `json:"status"`
	Progress  int          `json:"progress"`
	OutputURL string       `json:"output_url,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// handleStatus reports progress by the task ref handed out at generation.
func (h *Handler) handleStatus(c *gin.Context) {
	st, err := h.store.FindByTaskRef(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Status:    st.Status,
		Progress:  st.Progress,
		OutputURL: st.OutputURL,
		Error:     st.Error,
	})
}

// handleGetOutput serves a rendered GIF.
func (h *Handler) handleGetOutput(c *gin.Context) {
	filename := c.Param("filename")
	// Path traversal guard.
	if filepath.Base(filename) != filename {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	fullPath := filepath.Join(h.cfg.OutputDir, filename)
	if _, err := os.Stat(fullPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(fullPath)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
