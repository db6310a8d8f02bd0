package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

// parseUUID parses a UUID from a gin.Context parameter
func parseUUID(c *gin.Context, paramName, entityType string) (uuid.UUID, bool) {
	idParam := c.Param(paramName)
	id, err := uuid.Parse(idParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + entityType + " ID format",
		})
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit parses the limit query parameter with a default
func parseLimit(c *gin.Context, fallback int) int {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(fallback))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// handleRepositoryError handles common repository errors
func handleRepositoryError(c *gin.Context, err error, entityType, operation string) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": entityType + " not found",
		})
		return
	}
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}
	if isValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to " + operation + " " + entityType,
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidProgram) ||
		errors.Is(err, domain.ErrInvalidRecurrence) ||
		errors.Is(err, domain.ErrInvalidSchedule) ||
		errors.Is(err, domain.ErrEmptyActiveWindow) ||
		errors.Is(err, domain.ErrInvalidQueueEntry) ||
		errors.Is(err, domain.ErrContentKindMismatch)
}
