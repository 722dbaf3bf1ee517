package notify

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/pkg/response"
)

// NotificationHandler serves the notification read API
type NotificationHandler struct {
	service *Service
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(service *Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List handles listing recent notifications within the caller's visibility scope
// GET /api/v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	principal, ok := identity.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Unauthorized(""))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, response.BadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	notifications, err := h.service.ListVisible(c.Request.Context(), principal, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(notifications))
}
