package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/config"
	"github.com/longtails/freemasons/internal/handlers"
	"github.com/longtails/freemasons/internal/metrics"
	"github.com/longtails/freemasons/internal/middleware"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(ctx context.Context, r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(cfg.Server.AllowOrigins))

	db := models.GetDB()

	healthHandler := handlers.NewHealthHandler(db, svc.taskQueue)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(), limiter.Middleware(), middleware.AuditLog())
	{
		projectHandler := handlers.NewProjectHandler(db, svc.runner, svc.taskQueue)
		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:id", projectHandler.GetByID)
		api.GET("/projects/:id/summary", projectHandler.Summary)

		memberHandler := handlers.NewMemberHandler(db, svc.runner)
		api.GET("/members", memberHandler.List)
		api.GET("/members/:id", memberHandler.GetByID)

		syncLogHandler := handlers.NewSyncLogHandler(db)
		api.GET("/sync-logs", syncLogHandler.List)
		api.GET("/sync-logs/modules", syncLogHandler.GetModules)

		// Writes trigger upstream calls and need the operator role
		operator := api.Group("", middleware.OperatorRequired())
		{
			operator.POST("/projects", projectHandler.Create)
			operator.POST("/projects/:id/sync", projectHandler.Sync)
			operator.POST("/members/:id/sync", memberHandler.Sync)
		}
	}
}
