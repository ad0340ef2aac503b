package router

import (
	"log/slog"

	"github.com/cuongbtq/pdf-gateway/internal/api/handler"
	"github.com/cuongbtq/pdf-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Options holds the router-level settings and middleware collaborators
type Options struct {
	AllowedOrigins []string
	Authenticator  Authenticator
	Limiter        *ratelimit.Limiter
	// MaxMultipartMemory bounds the in-memory part of file uploads
	MaxMultipartMemory int64
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()
	if opts.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", handler.Health(deps))

	toolHandler := handler.NewToolHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	fileHandler := handler.NewFileHandler(deps)
	keyHandler := handler.NewKeyHandler(deps)
	usageHandler := handler.NewUsageHandler(deps)

	authenticate := AuthMiddleware(opts.Authenticator, deps.Logger)
	rateLimit := RateLimitMiddleware(opts.Limiter, deps.Plans)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/tools", toolHandler.ListTools)
		v1.GET("/tools/:tool", toolHandler.GetTool)

		secured := v1.Group("", authenticate, rateLimit)
		{
			secured.POST("/files", fileHandler.UploadFile)

			// POST /api/v1/tools/:tool - Run a tool, inline or queued
			secured.POST("/tools/:tool", toolHandler.RunTool)
			secured.POST("/ai/summarize", toolHandler.Summarize)

			jobs := secured.Group("/jobs")
			{
				jobs.GET("", jobHandler.ListJobs)
				jobs.GET("/:job_id", jobHandler.GetJob)
				jobs.GET("/:job_id/download", jobHandler.DownloadJob)
				jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
				jobs.DELETE("/:job_id", jobHandler.DeleteJob)
			}

			secured.GET("/usage", usageHandler.GetUsage)

			keys := secured.Group("/keys")
			{
				keys.POST("", keyHandler.CreateKey)
				keys.GET("", keyHandler.ListKeys)
				keys.DELETE("/:key_id", keyHandler.RevokeKey)
			}
		}
	}

	deps.Logger.Debug("Routes registered", slog.Int("count", len(r.Routes())))
	return r
}
