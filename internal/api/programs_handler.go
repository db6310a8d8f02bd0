package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// createProgramRequest is the payload for POST /api/v1/programs
type createProgramRequest struct {
	Name          string   `json:"name"          binding:"required"`
	ContentTypes  []string `json:"content_types" binding:"required"`
	CountryIDs    []int64  `json:"country_ids"`
	LanguageIDs   []int64  `json:"language_ids"`
	ThemeIDs      []int64  `json:"theme_ids"`
	QuantityMode  string   `json:"quantity_mode"  binding:"required"`
	QuantityValue int      `json:"quantity_value" binding:"required"`

	RecurrenceType string `json:"recurrence_type" binding:"required"`
	RunTime        string `json:"run_time"`
	Timezone       string `json:"timezone"`
	Weekdays       []int  `json:"weekdays"`
	DayOfMonth     int    `json:"day_of_month"`
	CronExpr       string `json:"cron_expr"`

	StartAt *time.Time `json:"start_at"`
	EndAt   *time.Time `json:"end_at"`

	DailyBudgetLimit     *float64 `json:"daily_budget_limit"`
	DailyGenerationLimit *int64   `json:"daily_generation_limit"`
	ConcurrentJobsLimit  *int64   `json:"concurrent_jobs_limit"`
}

// createProgram handles POST /api/v1/programs
func (r *Router) createProgram(c *gin.Context) {
	var req createProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := domain.Recurrence{
		Type:       domain.RecurrenceType(req.RecurrenceType),
		TimeOfDay:  req.RunTime,
		Timezone:   req.Timezone,
		Weekdays:   req.Weekdays,
		DayOfMonth: req.DayOfMonth,
		CronExpr:   req.CronExpr,
	}

	p, err := domain.NewProgram(req.Name, req.ContentTypes, domain.QuantityMode(req.QuantityMode), req.QuantityValue, rec)
	if err != nil {
		handleRepositoryError(c, err, "program", "create")
		return
	}
	p.CountryIDs = pq.Int64Array(req.CountryIDs)
	p.LanguageIDs = pq.Int64Array(req.LanguageIDs)
	p.ThemeIDs = pq.Int64Array(req.ThemeIDs)
	p.StartAt = req.StartAt
	p.EndAt = req.EndAt
	p.DailyBudgetLimit = req.DailyBudgetLimit
	p.DailyGenerationLimit = req.DailyGenerationLimit
	p.ConcurrentJobsLimit = req.ConcurrentJobsLimit

	if err := r.programs.Create(c.Request.Context(), p); err != nil {
		r.logger.Error("failed to create program", logger.Error(err))
		handleRepositoryError(c, err, "program", "create")
		return
	}

	c.JSON(http.StatusCreated, p)
}

// listPrograms handles GET /api/v1/programs?status=active&limit=50
func (r *Router) listPrograms(c *gin.Context) {
	status := domain.ProgramStatus(c.Query("status"))
	limit := parseLimit(c, defaultListLimit)

	programs, err := r.programs.List(c.Request.Context(), status, limit)
	if err != nil {
		r.logger.Error("failed to list programs", logger.Error(err))
		handleRepositoryError(c, err, "programs", "list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"programs": programs,
		"count":    len(programs),
	})
}

// getProgram handles GET /api/v1/programs/:id
func (r *Router) getProgram(c *gin.Context) {
	id, ok := parseUUID(c, "id", "program")
	if !ok {
		return
	}

	p, err := r.programs.Get(c.Request.Context(), id)
	if err != nil {
		handleRepositoryError(c, err, "program", "get")
		return
	}

	c.JSON(http.StatusOK, p)
}

// listProgramRuns handles GET /api/v1/programs/:id/runs
func (r *Router) listProgramRuns(c *gin.Context) {
	id, ok := parseUUID(c, "id", "program")
	if !ok {
		return
	}
	limit := parseLimit(c, defaultListLimit)

	runs, err := r.runs.ForProgram(c.Request.Context(), id, limit)
	if err != nil {
		handleRepositoryError(c, err, "runs", "list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// activateProgram handles POST /api/v1/programs/:id/activate
func (r *Router) activateProgram(c *gin.Context) {
	r.transitionProgram(c, "activate", r.runner.Activate)
}

// pauseProgram handles POST /api/v1/programs/:id/pause
func (r *Router) pauseProgram(c *gin.Context) {
	r.transitionProgram(c, "pause", r.runner.Pause)
}

// resumeProgram handles POST /api/v1/programs/:id/resume
func (r *Router) resumeProgram(c *gin.Context) {
	r.transitionProgram(c, "resume", r.runner.Resume)
}

func (r *Router) transitionProgram(c *gin.Context, operation string, transition func(ctx context.Context, p *domain.Program, now time.Time) error) {
	id, ok := parseUUID(c, "id", "program")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := r.programs.Get(ctx, id)
	if err != nil {
		handleRepositoryError(c, err, "program", operation)
		return
	}

	if err := transition(ctx, p, time.Now().UTC()); err != nil {
		handleRepositoryError(c, err, "program", operation)
		return
	}

	c.JSON(http.StatusOK, p)
}
