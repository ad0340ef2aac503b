package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		}
		if p, ok := auth.FromContext(c); ok {
			attrs = append(attrs,
				slog.String("user_id", p.UserID),
				slog.String("auth_method", string(p.Method)),
			)
		}
		logger.Info("HTTP Request", attrs...)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware allows browser clients from the configured origins
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-API-Key", "X-Requested-With"},
		ExposeHeaders:    []string{"Retry-After", "Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

// Authenticator resolves request credentials into a principal
type Authenticator interface {
	Authenticate(ctx context.Context, authorization, apiKey string) (*auth.Principal, error)
}

// AuthMiddleware rejects requests without valid credentials and stores the principal
func AuthMiddleware(authenticator Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authenticator.Authenticate(c.Request.Context(),
			c.GetHeader("Authorization"),
			c.GetHeader("X-API-Key"),
		)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingCredentials),
				errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrInvalidAPIKey):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": err.Error(),
				})
			default:
				logger.Error("Authentication failed", slog.String("error", err.Error()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to authenticate request",
				})
			}
			return
		}

		auth.SetPrincipal(c, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RateLimitMiddleware applies the per-caller token bucket of the caller's plan
func RateLimitMiddleware(limiter *ratelimit.Limiter, plans func(string) config.PlanConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.FromContext(c)
		if !ok {
			c.Next()
			return
		}

		plan := plans(p.Plan)
		perMinute, burst := plan.RequestsPerMinute, plan.Burst
		if p.RequestsPerMinute > 0 {
			perMinute = p.RequestsPerMinute
			if burst > perMinute {
				burst = perMinute
			}
		}

		allowed, wait := limiter.Allow(p.RateKey(), perMinute, burst)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(wait)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
