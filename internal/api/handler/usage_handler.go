package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// UsageHandler reports the caller's consumption in the current period
type UsageHandler struct {
	logger *slog.Logger
	jobs   JobStore
	quota  *ratelimit.Quota
	plans  func(name string) config.PlanConfig
}

func NewUsageHandler(deps *Dependencies) *UsageHandler {
	return &UsageHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		quota:  deps.Quota,
		plans:  deps.Plans,
	}
}

// GetUsage handles GET /api/v1/usage
func (h *UsageHandler) GetUsage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	plan := h.plans(p.Plan)
	usage, err := h.quota.Current(c.Request.Context(), p.UserID, plan.MonthlyJobs)
	if err != nil {
		respondError(c, h.logger, err, "Failed to read usage")
		return
	}

	byStatus, err := h.jobs.JobUsage(c.Request.Context(), p.UserID, usage.PeriodStart)
	if err != nil {
		respondError(c, h.logger, err, "Failed to read usage")
		return
	}

	rpm := plan.RequestsPerMinute
	if p.RequestsPerMinute > 0 {
		rpm = p.RequestsPerMinute
	}

	c.JSON(http.StatusOK, dto.UsageResponse{
		Plan:              p.Plan,
		PeriodStart:       usage.PeriodStart.Format(time.RFC3339),
		PeriodEnd:         usage.PeriodEnd.Format(time.RFC3339),
		JobsUsed:          usage.Used,
		JobsLimit:         usage.Limit,
		JobsRemaining:     usage.Remaining(),
		JobsByStatus:      byStatus,
		RequestsPerMinute: rpm,
		MaxUploadBytes:    plan.MaxUploadBytes,
		AIEnabled:         plan.AIEnabled,
	})
}
