package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// getStatsOverview handles GET /api/v1/stats/overview. It combines the
// durable Postgres counts with today's Redis counters.
func (r *Router) getStatsOverview(c *gin.Context) {
	ctx := c.Request.Context()

	programStats, err := r.programs.GetStats(ctx)
	if err != nil {
		r.logger.Error("failed to get program stats", logger.Error(err))
		handleRepositoryError(c, err, "stats", "get")
		return
	}

	queueStats, err := r.queue.GetStats(ctx)
	if err != nil {
		r.logger.Error("failed to get queue stats", logger.Error(err))
		handleRepositoryError(c, err, "stats", "get")
		return
	}

	schedules, err := r.schedules.ActiveSchedules(ctx)
	if err != nil {
		r.logger.Error("failed to list schedules", logger.Error(err))
		handleRepositoryError(c, err, "stats", "get")
		return
	}
	destinations := make([]string, 0, len(schedules))
	for _, s := range schedules {
		destinations = append(destinations, s.Destination)
	}

	today, err := r.tracker.GetStats(ctx, destinations, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to get daily counters", logger.Error(err))
		handleRepositoryError(c, err, "stats", "get")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"programs": programStats,
		"queue":    queueStats,
		"today":    today,
	})
}
