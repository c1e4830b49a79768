package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

// Inbox reads a user's recent booking events.
type Inbox interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.BookingEvent, error)
}

// RestNotificationHandler serves the per-user event inbox.
type RestNotificationHandler struct {
	inbox Inbox
}

// NewRestNotificationHandler creates a new RestNotificationHandler.
func NewRestNotificationHandler(inbox Inbox) *RestNotificationHandler {
	return &RestNotificationHandler{inbox: inbox}
}

// ListRecent handles GET /v1/notifications
func (h *RestNotificationHandler) ListRecent(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	events, err := h.inbox.Recent(c.Request.Context(), caller.UserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []models.BookingEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}
