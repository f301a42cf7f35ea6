package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
)

// 返却予定日はその日の閉館扱いの時刻までとします
const returnDeadlineClock = "23:59"

// GET /v1/borrows/me
func (h *Handler) MyBorrows(c echo.Context) error {
	rows, err := h.svc.Borrow.ListByUser(c.Request().Context(), currentUserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// POST /v1/borrows
func (h *Handler) Checkout(c echo.Context) error {
	var req CheckoutReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	returnDate, err := utils.ParseLocalDateTime(req.ReturnDate, returnDeadlineClock, h.loc)
	if err != nil {
		return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid return_date"))
	}

	b, err := h.svc.Borrow.Checkout(c.Request().Context(), req.UserID, req.CopyID, returnDate)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// POST /v1/borrows/:id/return
func (h *Handler) ReturnBorrow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	if err := h.svc.Borrow.Return(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "returned"})
}
