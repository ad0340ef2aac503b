package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobStore
	runner Runner
	store  objectstore.Store
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		runner: deps.Runner,
		store:  deps.Store,
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.GetJobForUser(c.Request.Context(), jobID, p.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	resp := toJobDTO(job)
	if job.Status == domain.JobStatusCompleted && resp.Result != nil {
		url, err := h.runner.SignURL(c.Request.Context(), resp.Result.OutputPath)
		if err != nil {
			h.logger.Warn("Failed to sign result url",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.URL = url
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   p.UserID,
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// DownloadJob handles GET /api/v1/jobs/:job_id/download
// Redirects to a freshly signed URL of the job output
func (h *JobHandler) DownloadJob(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.GetJobForUser(c.Request.Context(), jobID, p.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	result := outputOf(job)
	if job.Status != domain.JobStatusCompleted || result == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job has no output to download",
			"status": job.Status,
		})
		return
	}

	url, err := h.runner.SignURL(c.Request.Context(), result.OutputPath)
	if err != nil {
		respondError(c, h.logger, err, "Failed to sign download url")
		return
	}

	c.Redirect(http.StatusFound, url)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a pending or running job
func (h *JobHandler) CancelJob(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.CancelJob(c.Request.Context(), jobID, p.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to cancel job")
		return
	}

	h.logger.Info("Job canceled",
		slog.String("job_id", jobID),
		slog.String("user_id", p.UserID),
	)
	c.JSON(http.StatusOK, toJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Deletes a finished job and its output file
func (h *JobHandler) DeleteJob(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.DeleteJob(c.Request.Context(), jobID, p.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to delete job")
		return
	}

	if result := outputOf(job); result != nil {
		if err := h.store.Delete(context.WithoutCancel(c.Request.Context()), result.OutputPath); err != nil {
			h.logger.Warn("Failed to delete job output",
				slog.String("job_id", jobID),
				slog.String("path", result.OutputPath),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Status(http.StatusNoContent)
}

func jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

func outputOf(job *model.Job) *pipeline.Result {
	if job.Result == nil {
		return nil
	}
	result, err := pipeline.ParseResult(*job.Result)
	if err != nil || result.OutputPath == "" {
		return nil
	}
	return result
}
