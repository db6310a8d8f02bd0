package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// scheduleRequest is the payload for creating or updating a publication
// schedule.
type scheduleRequest struct {
	Destination          string  `json:"destination"`
	ArticlesPerDay       int     `json:"articles_per_day"        binding:"required"`
	MaxPerHour           int     `json:"max_per_hour"`
	ActiveHours          []int64 `json:"active_hours"            binding:"required"`
	ActiveDays           []int64 `json:"active_days"             binding:"required"`
	MinIntervalMinutes   int     `json:"min_interval_minutes"`
	Timezone             string  `json:"timezone"`
	IsActive             *bool   `json:"is_active"`
	PauseOnError         bool    `json:"pause_on_error"`
	MaxErrorsBeforePause int     `json:"max_errors_before_pause"`
}

// listSchedules handles GET /api/v1/schedules
func (r *Router) listSchedules(c *gin.Context) {
	schedules, err := r.schedules.ActiveSchedules(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to list schedules", logger.Error(err))
		handleRepositoryError(c, err, "schedules", "list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// createSchedule handles POST /api/v1/schedules
func (r *Router) createSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := &domain.PublicationSchedule{
		ID:          uuid.New(),
		Destination: req.Destination,

		ArticlesPerDay:     req.ArticlesPerDay,
		MaxPerHour:         req.MaxPerHour,
		ActiveHours:        pq.Int64Array(req.ActiveHours),
		ActiveDays:         pq.Int64Array(req.ActiveDays),
		MinIntervalMinutes: req.MinIntervalMinutes,
		Timezone:           req.Timezone,

		IsActive:             true,
		PauseOnError:         req.PauseOnError,
		MaxErrorsBeforePause: req.MaxErrorsBeforePause,
	}
	if req.IsActive != nil {
		s.IsActive = *req.IsActive
	}

	if err := r.schedules.Create(c.Request.Context(), s); err != nil {
		handleRepositoryError(c, err, "schedule", "create")
		return
	}

	c.JSON(http.StatusCreated, s)
}

// getSchedule handles GET /api/v1/schedules/:destination. The response
// pairs the schedule with today's publish counter so operators see the
// throttle policy and its current consumption together.
func (r *Router) getSchedule(c *gin.Context) {
	destination := c.Param("destination")
	ctx := c.Request.Context()

	s, err := r.schedules.GetByDestination(ctx, destination)
	if err != nil {
		handleRepositoryError(c, err, "schedule", "get")
		return
	}

	response := gin.H{"schedule": s}
	if published, pubErr := r.tracker.PublishedOn(ctx, destination, time.Now().UTC()); pubErr == nil {
		response["published_today"] = published
	} else {
		r.logger.Warn("failed to read publish counter",
			logger.String("destination", destination),
			logger.Error(pubErr))
	}

	c.JSON(http.StatusOK, response)
}

// updateSchedule handles PUT /api/v1/schedules/:destination
func (r *Router) updateSchedule(c *gin.Context) {
	destination := c.Param("destination")
	ctx := c.Request.Context()

	s, err := r.schedules.GetByDestination(ctx, destination)
	if err != nil {
		handleRepositoryError(c, err, "schedule", "update")
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.ArticlesPerDay = req.ArticlesPerDay
	s.MaxPerHour = req.MaxPerHour
	s.ActiveHours = pq.Int64Array(req.ActiveHours)
	s.ActiveDays = pq.Int64Array(req.ActiveDays)
	s.MinIntervalMinutes = req.MinIntervalMinutes
	s.Timezone = req.Timezone
	s.PauseOnError = req.PauseOnError
	s.MaxErrorsBeforePause = req.MaxErrorsBeforePause
	if req.IsActive != nil {
		s.IsActive = *req.IsActive
	}

	if err := r.schedules.Update(ctx, s); err != nil {
		handleRepositoryError(c, err, "schedule", "update")
		return
	}

	c.JSON(http.StatusOK, s)
}
