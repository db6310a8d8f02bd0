// Package api exposes the admin HTTP API: program lifecycle, run and
// queue inspection, throttle schedules and statistics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/config"
	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/runner"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
	defaultListLimit     = 50
)

// Router holds the API dependencies
type Router struct {
	programs    *database.ProgramRepository
	runs        *database.RunRepository
	items       *database.ItemRepository
	queue       *database.QueueRepository
	schedules   *database.ScheduleRepository
	runner      *runner.Runner
	tracker     metrics.MetricsTracker
	telemetry   *telemetry.Provider
	redisClient *redis.Client
	cfg         *config.Config
	logger      logger.Logger
}

// RouterDeps bundles the router's dependencies
type RouterDeps struct {
	Programs    *database.ProgramRepository
	Runs        *database.RunRepository
	Items       *database.ItemRepository
	Queue       *database.QueueRepository
	Schedules   *database.ScheduleRepository
	Runner      *runner.Runner
	Tracker     metrics.MetricsTracker
	Telemetry   *telemetry.Provider
	RedisClient *redis.Client
	Config      *config.Config
	Logger      logger.Logger
}

// NewRouter creates a new API router
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		programs:    deps.Programs,
		runs:        deps.Runs,
		items:       deps.Items,
		queue:       deps.Queue,
		schedules:   deps.Schedules,
		runner:      deps.Runner,
		tracker:     deps.Tracker,
		telemetry:   deps.Telemetry,
		redisClient: deps.RedisClient,
		cfg:         deps.Config,
		logger:      deps.Logger,
	}
}

// SetupRoutes builds the gin engine with middleware and all routes.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(r.cfg.Server.CORSOrigins))

	// Health and metrics (public, no auth)
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(r.telemetry.Handler()))

	v1 := router.Group("/api/v1")

	programs := v1.Group("/programs")
	programs.GET("", r.listPrograms)
	programs.POST("", r.createProgram)
	programs.GET("/:id", r.getProgram)
	programs.GET("/:id/runs", r.listProgramRuns)
	programs.POST("/:id/activate", r.activateProgram)
	programs.POST("/:id/pause", r.pauseProgram)
	programs.POST("/:id/resume", r.resumeProgram)

	runs := v1.Group("/runs")
	runs.GET("/:id", r.getRun)
	runs.GET("/:id/items", r.listRunItems)
	runs.POST("/:id/cancel", r.cancelRun)

	items := v1.Group("/items")
	items.POST("/claim", r.claimItems)
	items.POST("/:id/complete", r.completeItem)
	items.POST("/:id/fail", r.failItem)

	queue := v1.Group("/queue")
	queue.POST("", r.enqueueEntry)
	queue.GET("/stats", r.getQueueStats)
	queue.GET("/:id", r.getQueueEntry)
	queue.POST("/:id/cancel", r.cancelQueueEntry)

	schedules := v1.Group("/schedules")
	schedules.GET("", r.listSchedules)
	schedules.POST("", r.createSchedule)
	schedules.GET("/:destination", r.getSchedule)
	schedules.PUT("/:destination", r.updateSchedule)

	stats := v1.Group("/stats")
	stats.GET("/overview", r.getStatsOverview)

	return router
}

// healthCheck returns the service health status
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "content-scheduler",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if _, err := r.programs.GetStats(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	redisHealth := r.checkRedisHealth(ctx)
	health["redis"] = redisHealth
	if connected, ok := redisHealth["connected"].(bool); ok && !connected {
		if health["status"] == healthStatusHealthy {
			health["status"] = healthStatusDegraded
		}
	}

	c.JSON(http.StatusOK, health)
}

// checkRedisHealth checks Redis connection and returns health info
func (r *Router) checkRedisHealth(ctx context.Context) gin.H {
	if r.redisClient == nil {
		return gin.H{
			"connected": false,
			"error":     "Redis client not initialized",
		}
	}

	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		return gin.H{
			"connected": false,
			"error":     err.Error(),
		}
	}
	return gin.H{"connected": true}
}
