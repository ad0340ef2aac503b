package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/pdf-gateway/internal/ai"
	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"github.com/gin-gonic/gin"
)

// statusFor maps an error onto an HTTP status and a client-safe message.
// Server-side failures get the fallback message instead of err's text.
func statusFor(err error, fallback string) (int, string) {
	var engineErr *engine.Error

	switch {
	case errors.Is(err, tools.ErrToolNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrAPIKeyNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return http.StatusNotFound, "input file not found"
	case errors.Is(err, tools.ErrInvalidParams),
		errors.Is(err, tools.ErrInvalidInputCount),
		errors.Is(err, pipeline.ErrInvalidPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, pipeline.ErrForbiddenInput):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, ai.ErrDisabled):
		return http.StatusForbidden, "AI features are not available"
	case errors.Is(err, domain.ErrJobStateConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ratelimit.ErrQuotaExceeded):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, ai.ErrEmptyInput):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &engineErr) && engine.IsClientError(err):
		return http.StatusUnprocessableEntity, engineErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "processing timed out"
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return http.StatusBadGateway, fallback
	}
	return http.StatusInternalServerError, fallback
}

func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	status, msg := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{
		"error": msg,
	})
}
