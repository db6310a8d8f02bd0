package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// getRun handles GET /api/v1/runs/:id
func (r *Router) getRun(c *gin.Context) {
	id, ok := parseUUID(c, "id", "run")
	if !ok {
		return
	}

	run, err := r.runs.Get(c.Request.Context(), id)
	if err != nil {
		handleRepositoryError(c, err, "run", "get")
		return
	}

	c.JSON(http.StatusOK, run)
}

// listRunItems handles GET /api/v1/runs/:id/items
func (r *Router) listRunItems(c *gin.Context) {
	id, ok := parseUUID(c, "id", "run")
	if !ok {
		return
	}

	items, err := r.items.ForRun(c.Request.Context(), id)
	if err != nil {
		handleRepositoryError(c, err, "items", "list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// cancelRun handles POST /api/v1/runs/:id/cancel
func (r *Router) cancelRun(c *gin.Context) {
	id, ok := parseUUID(c, "id", "run")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	run, err := r.runs.Get(ctx, id)
	if err != nil {
		handleRepositoryError(c, err, "run", "cancel")
		return
	}

	if err := r.runner.CancelRun(ctx, run, time.Now().UTC()); err != nil {
		r.logger.Error("failed to cancel run", logger.String("run_id", id.String()), logger.Error(err))
		handleRepositoryError(c, err, "run", "cancel")
		return
	}

	c.JSON(http.StatusOK, run)
}

// completeItemRequest is the payload for POST /api/v1/items/:id/complete
type completeItemRequest struct {
	ContentKind string  `json:"content_kind" binding:"required"`
	ContentID   string  `json:"content_id"   binding:"required"`
	Cost        float64 `json:"cost"`
}

// completeItem handles POST /api/v1/items/:id/complete
func (r *Router) completeItem(c *gin.Context) {
	id, ok := parseUUID(c, "id", "item")
	if !ok {
		return
	}

	var req completeItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := domain.ContentRef{Kind: domain.ContentKind(req.ContentKind), ID: req.ContentID}
	if err := r.runner.CompleteItem(c.Request.Context(), id, ref, req.Cost, time.Now().UTC()); err != nil {
		handleRepositoryError(c, err, "item", "complete")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// failItemRequest is the payload for POST /api/v1/items/:id/fail
type failItemRequest struct {
	Error string `json:"error" binding:"required"`
}

// failItem handles POST /api/v1/items/:id/fail
func (r *Router) failItem(c *gin.Context) {
	id, ok := parseUUID(c, "id", "item")
	if !ok {
		return
	}

	var req failItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := r.runner.FailItem(c.Request.Context(), id, req.Error, time.Now().UTC()); err != nil {
		handleRepositoryError(c, err, "item", "fail")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "failed"})
}

// maxClaimBatch caps how many pending items one worker may take per call.
const maxClaimBatch = 100

// claimItemsRequest is the payload for POST /api/v1/items/claim
type claimItemsRequest struct {
	Limit int `json:"limit"`
}

// claimItems handles POST /api/v1/items/claim. Generation workers call
// this to take a batch of pending items; claimed items move to
// generating, and row locking keeps concurrent workers from sharing an
// item. Items not resolved in time are returned to pending by the
// scheduler's recovery loop.
func (r *Router) claimItems(c *gin.Context) {
	req := claimItemsRequest{Limit: defaultListLimit}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Limit <= 0 || req.Limit > maxClaimBatch {
		req.Limit = defaultListLimit
	}

	items, err := r.items.ClaimPending(c.Request.Context(), req.Limit)
	if err != nil {
		handleRepositoryError(c, err, "items", "claim")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}
