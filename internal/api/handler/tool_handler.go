package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// inlineWorkerID marks jobs executed inside the API process
const inlineWorkerID = "api-inline"

// ToolHandler serves the tool catalog and runs tool and AI jobs
type ToolHandler struct {
	logger    *slog.Logger
	jobs      JobStore
	runner    Runner
	publisher Publisher
	store     objectstore.Store
	quota     *ratelimit.Quota
	plans     func(name string) config.PlanConfig
	defaults  JobDefaults
}

func NewToolHandler(deps *Dependencies) *ToolHandler {
	return &ToolHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		runner:    deps.Runner,
		publisher: deps.Publisher,
		store:     deps.Store,
		quota:     deps.Quota,
		plans:     deps.Plans,
		defaults:  deps.JobDefaults,
	}
}

// ListTools handles GET /api/v1/tools
func (h *ToolHandler) ListTools(c *gin.Context) {
	list := tools.List()
	c.JSON(http.StatusOK, gin.H{
		"tools": list,
		"count": len(list),
	})
}

// GetTool handles GET /api/v1/tools/:tool
func (h *ToolHandler) GetTool(c *gin.Context) {
	tool, err := tools.Lookup(c.Param("tool"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get tool")
		return
	}
	c.JSON(http.StatusOK, tool)
}

// RunTool handles POST /api/v1/tools/:tool
// Records a job and either runs it inline or queues it for the worker
func (h *ToolHandler) RunTool(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	tool, err := tools.Lookup(c.Param("tool"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get tool")
		return
	}

	var req dto.RunToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.submit(c, p, pipeline.Job{
		ID:     uuid.NewString(),
		UserID: p.UserID,
		Type:   tool.Name,
		Payload: pipeline.Payload{
			InputPaths: req.InputPaths,
			Params:     req.Params,
			OutputName: req.OutputName,
		},
	}, req.IdempotencyKey, req.Async)
}

// Summarize handles POST /api/v1/ai/summarize
func (h *ToolHandler) Summarize(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if !h.plans(p.Plan).AIEnabled {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "AI features are not available on the " + p.Plan + " plan",
		})
		return
	}

	var req dto.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.submit(c, p, pipeline.Job{
		ID:     uuid.NewString(),
		UserID: p.UserID,
		Type:   pipeline.JobTypeSummarize,
		Payload: pipeline.Payload{
			InputPaths: []string{req.InputPath},
			OutputName: req.OutputName,
			Prompt:     req.Prompt,
		},
	}, req.IdempotencyKey, req.Async)
}

func (h *ToolHandler) submit(c *gin.Context, p *auth.Principal, pjob pipeline.Job, idempotencyKey string, async bool) {
	ctx := c.Request.Context()

	if idempotencyKey != "" {
		existing, err := h.jobs.GetJobByIdempotencyKey(ctx, p.UserID, idempotencyKey)
		if err == nil {
			h.respondExisting(c, existing)
			return
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, h.logger, err, "Failed to check idempotency key")
			return
		}
	}

	// replays above are free; only new jobs count against the allowance
	if !h.checkQuota(c, p) {
		return
	}

	if err := h.runner.Validate(pjob); err != nil {
		respondError(c, h.logger, err, "Failed to validate job")
		return
	}

	payload, err := pjob.Payload.Encode()
	if err != nil {
		respondError(c, h.logger, err, "Failed to encode job payload")
		return
	}

	now := time.Now().UTC()
	job := &model.Job{
		JobID:          pjob.ID,
		UserID:         p.UserID,
		APIKeyID:       optional(p.APIKeyID),
		IdempotencyKey: optional(idempotencyKey),
		JobType:        pjob.Type,
		Payload:        payload,
		Status:         domain.JobStatusPending,
		MaxRetries:     h.defaults.MaxRetries,
		TimeoutSeconds: h.defaults.TimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			existing, getErr := h.jobs.GetJobByIdempotencyKey(ctx, p.UserID, idempotencyKey)
			if getErr != nil {
				respondError(c, h.logger, getErr, "Failed to load existing job")
				return
			}
			h.respondExisting(c, existing)
			return
		}
		respondError(c, h.logger, err, "Failed to create job")
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("user_id", job.UserID),
		slog.Bool("async", async),
	)

	if async {
		h.enqueue(c, job)
		return
	}
	h.runInline(c, job, pjob)
}

// checkQuota writes a 429 and returns false once the monthly allowance is used up
func (h *ToolHandler) checkQuota(c *gin.Context, p *auth.Principal) bool {
	usage, err := h.quota.Check(c.Request.Context(), p.UserID, h.plans(p.Plan).MonthlyJobs)
	if err == nil {
		return true
	}
	if errors.Is(err, ratelimit.ErrQuotaExceeded) {
		c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(time.Until(usage.PeriodEnd))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": err.Error(),
			"used":  usage.Used,
			"limit": usage.Limit,
		})
		return false
	}
	respondError(c, h.logger, err, "Failed to check quota")
	return false
}

func (h *ToolHandler) enqueue(c *gin.Context, job *model.Job) {
	ctx := c.Request.Context()
	body, _ := json.Marshal(map[string]string{"job_id": job.JobID})

	if err := h.publisher.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		h.failUnstarted(context.WithoutCancel(ctx), job.JobID, "failed to enqueue job")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "Failed to enqueue job",
			"job_id": job.JobID,
		})
		return
	}

	c.JSON(http.StatusAccepted, toJobDTO(job))
}

func (h *ToolHandler) runInline(c *gin.Context, job *model.Job, pjob pipeline.Job) {
	ctx := c.Request.Context()

	if err := h.jobs.MarkJobRunning(ctx, job.JobID, inlineWorkerID); err != nil {
		respondError(c, h.logger, err, "Failed to start job")
		return
	}

	runCtx := ctx
	if h.defaults.SyncTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.defaults.SyncTimeout)
		defer cancel()
	}

	result, runErr := h.runner.Run(runCtx, pjob)

	// the record must be settled even when the client went away
	bookCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if err := h.jobs.FinishJob(bookCtx, job.JobID, domain.JobStatusFailed, nil, runErr.Error()); err != nil {
			h.logger.Warn("Failed to mark job failed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}

		status, msg := statusFor(runErr, "Failed to process job")
		h.logger.Warn("Job failed",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
			slog.Int("status", status),
			slog.String("error", runErr.Error()),
		)
		c.JSON(status, gin.H{
			"error":  msg,
			"job_id": job.JobID,
		})
		return
	}

	if err := h.jobs.FinishJob(bookCtx, job.JobID, domain.JobStatusCompleted, result, ""); err != nil {
		if errors.Is(err, domain.ErrJobStateConflict) {
			h.discardOutput(bookCtx, job.JobID, result.OutputPath)
			c.JSON(http.StatusConflict, gin.H{
				"error":  "job was canceled while running",
				"job_id": job.JobID,
			})
			return
		}
		respondError(c, h.logger, err, "Failed to complete job")
		return
	}

	completedAt := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.UpdatedAt = completedAt
	job.CompletedAt = &completedAt

	resp := toJobDTO(job)
	resp.Result = toResultDTO(result)
	resp.URL = result.URL
	c.JSON(http.StatusOK, resp)
}

// discardOutput removes the result of a job that was canceled while it ran
func (h *ToolHandler) discardOutput(ctx context.Context, jobID, outputPath string) {
	if outputPath == "" {
		return
	}
	if err := h.store.Delete(ctx, outputPath); err != nil {
		h.logger.Warn("Failed to delete output of canceled job",
			slog.String("job_id", jobID),
			slog.String("path", outputPath),
			slog.String("error", err.Error()),
		)
	}
}

// failUnstarted moves a job that never ran straight to FAILED
func (h *ToolHandler) failUnstarted(ctx context.Context, jobID, reason string) {
	if err := h.jobs.MarkJobRunning(ctx, jobID, inlineWorkerID); err != nil {
		h.logger.Warn("Failed to mark job running", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	if err := h.jobs.FinishJob(ctx, jobID, domain.JobStatusFailed, nil, reason); err != nil {
		h.logger.Warn("Failed to mark job failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func (h *ToolHandler) respondExisting(c *gin.Context, job *model.Job) {
	resp := toJobDTO(job)
	if job.Status == domain.JobStatusCompleted && resp.Result != nil {
		if url, err := h.runner.SignURL(c.Request.Context(), resp.Result.OutputPath); err == nil {
			resp.URL = url
		}
	}
	c.JSON(http.StatusOK, resp)
}
