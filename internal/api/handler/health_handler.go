package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// Health handles GET /health
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps.HealthChecks))
		healthy := true
		for _, hc := range deps.HealthChecks {
			if err := hc.Check(ctx); err != nil {
				checks[hc.Name] = err.Error()
				healthy = false
				continue
			}
			checks[hc.Name] = "ok"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": deps.Service,
			"checks":  checks,
		})
	}
}
