package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
)

// POST /v1/reservations
func (h *Handler) CreateReservation(c echo.Context) error {
	var req CreateReservationReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	date, err := utils.ParseDate(req.Date)
	if err != nil {
		return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid date"))
	}
	start, err := utils.ParseLocalDateTime(req.Date, req.StartTime, h.loc)
	if err != nil {
		return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid start_time"))
	}
	end, err := utils.ParseLocalDateTime(req.Date, req.EndTime, h.loc)
	if err != nil {
		return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid end_time"))
	}

	r, err := h.svc.Reservation.Reserve(c.Request().Context(), currentUserID(c), req.CopyID, date, start, end)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// DELETE /v1/reservations/:id
func (h *Handler) CancelReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	if err := h.svc.Reservation.Cancel(c.Request().Context(), currentUserID(c), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "cancelled"})
}

// GET /v1/reservations/me
func (h *Handler) MyReservations(c echo.Context) error {
	rows, err := h.svc.Reservation.ListByUser(c.Request().Context(), currentUserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}
