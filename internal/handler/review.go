package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// POST /v1/reviews
func (h *Handler) CreateReview(c echo.Context) error {
	var req CreateReviewReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	r, err := h.svc.Review.AddReview(c.Request().Context(), currentUserID(c), req.BorrowID, req.BookID, req.Rating, req.Text)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}
