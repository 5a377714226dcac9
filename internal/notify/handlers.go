package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for reading notifications.
type Handler struct {
	store Store
}

// NewHandler creates a new notification handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the notification routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/notifications", h.ListNotifications)
	r.POST("/users/:id/notifications/:nid/read", h.MarkRead)
}

// ListNotifications handles GET /v1/users/:id/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	list, err := h.store.ListByUser(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to load notifications",
		})
		return
	}
	if list == nil {
		list = []*Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead handles POST /v1/users/:id/notifications/:nid/read
func (h *Handler) MarkRead(c *gin.Context) {
	err := h.store.MarkRead(c.Request.Context(), c.Param("nid"), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Notification not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "update_failed",
			"message": "Failed to mark notification read",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
