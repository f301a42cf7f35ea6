package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// pathID はパスパラメータ name を正の整数として取り出します
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.New(apperror.CodeInvalidArgument, "invalid %s", name)
	}
	return id, nil
}

// GET /v1/categories
func (h *Handler) ListCategories(c echo.Context) error {
	categories, err := h.svc.Catalog.ListCategories(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

// GET /v1/books
func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.svc.Catalog.ListBooks(c.Request().Context(), model.BookFilter{})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// POST /v1/books/filter
func (h *Handler) FilterBooks(c echo.Context) error {
	var req FilterBooksReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	filter := model.BookFilter{
		Categories: req.Categories,
		MinRating:  req.MinRating,
	}
	if req.PublishedAfter != "" {
		t, err := utils.ParseDate(req.PublishedAfter)
		if err != nil {
			return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid published_after"))
		}
		filter.PublishedAfter = &t
	}
	if req.PublishedBefore != "" {
		t, err := utils.ParseDate(req.PublishedBefore)
		if err != nil {
			return h.writeError(c, apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid published_before"))
		}
		filter.PublishedBefore = &t
	}

	books, err := h.svc.Catalog.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// GET /v1/books/:id
func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	book, err := h.svc.Catalog.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// GET /v1/books/:id/copies
func (h *Handler) GetCopies(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	groups, err := h.svc.Catalog.GetCopyGroups(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, groups)
}

// GET /v1/books/:id/reviews
func (h *Handler) ListReviews(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.writeError(c, err)
	}

	reviews, err := h.svc.Review.ListReviews(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, reviews)
}
