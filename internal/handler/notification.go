package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /v1/notifications/me
func (h *Handler) MyNotifications(c echo.Context) error {
	rows, err := h.svc.Notifications.GetByUserID(c.Request().Context(), currentUserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// POST /v1/notifications/:id/read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	if err := h.svc.Notifications.MarkRead(c.Request().Context(), currentUserID(c), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "read"})
}
