package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// enqueueRequest is the payload for POST /api/v1/queue
type enqueueRequest struct {
	ContentKind string `json:"content_kind" binding:"required"`
	ContentID   string `json:"content_id"   binding:"required"`
	Destination string `json:"destination"  binding:"required"`
	Priority    string `json:"priority"`
}

// enqueueEntry handles POST /api/v1/queue
func (r *Router) enqueueEntry(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := domain.ContentRef{Kind: domain.ContentKind(req.ContentKind), ID: req.ContentID}
	entry, err := domain.NewQueueEntry(ref, req.Destination, domain.QueuePriority(req.Priority))
	if err != nil {
		handleRepositoryError(c, err, "queue entry", "enqueue")
		return
	}

	inserted, err := r.queue.Enqueue(c.Request.Context(), entry)
	if err != nil {
		r.logger.Error("failed to enqueue entry",
			logger.String("destination", req.Destination),
			logger.Error(err))
		handleRepositoryError(c, err, "queue entry", "enqueue")
		return
	}
	if !inserted {
		// Duplicate live entry for the same content and destination.
		c.JSON(http.StatusConflict, gin.H{"error": "Content is already queued for this destination"})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// getQueueEntry handles GET /api/v1/queue/:id
func (r *Router) getQueueEntry(c *gin.Context) {
	id, ok := parseUUID(c, "id", "queue entry")
	if !ok {
		return
	}

	entry, err := r.queue.Get(c.Request.Context(), id)
	if err != nil {
		handleRepositoryError(c, err, "queue entry", "get")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// cancelQueueEntry handles POST /api/v1/queue/:id/cancel
func (r *Router) cancelQueueEntry(c *gin.Context) {
	id, ok := parseUUID(c, "id", "queue entry")
	if !ok {
		return
	}

	if err := r.queue.Cancel(c.Request.Context(), id); err != nil {
		handleRepositoryError(c, err, "queue entry", "cancel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// getQueueStats handles GET /api/v1/queue/stats
func (r *Router) getQueueStats(c *gin.Context) {
	stats, err := r.queue.GetStats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get queue stats", logger.Error(err))
		handleRepositoryError(c, err, "queue stats", "get")
		return
	}

	c.JSON(http.StatusOK, stats)
}
