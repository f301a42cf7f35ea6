package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
)

type errorResponse struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

// statusOf はエラーコードをHTTPステータスに対応付けます
// 予約・レビューの事前条件違反は code で区別できるようすべて 400 です
func statusOf(code apperror.Code) int {
	switch code {
	case apperror.CodeInvalidRange,
		apperror.CodeCopyUnavailable,
		apperror.CodeReservationLimitExceeded,
		apperror.CodeInvalidRating,
		apperror.CodeDuplicateReview,
		apperror.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError はエラーを {"code","message"} 形式のレスポンスに変換します
func (h *Handler) writeError(c echo.Context, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		status := statusOf(appErr.Code)
		if status == http.StatusInternalServerError {
			h.log.Error("request failed", "path", c.Path(), "err", err)
			return c.JSON(status, errorResponse{Code: apperror.CodeInternal, Message: "internal error"})
		}
		return c.JSON(status, errorResponse{Code: appErr.Code, Message: appErr.Message})
	}

	h.log.Error("request failed", "path", c.Path(), "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
	return c.JSON(http.StatusInternalServerError, errorResponse{Code: apperror.CodeInternal, Message: "internal error"})
}

// httpErrorHandler は echo 自身が返すエラー（ルート不一致など）も同じ形式にそろえます
func (h *Handler) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = h.writeError(c, err)
		return
	}

	code := apperror.CodeInternal
	switch {
	case he.Code == http.StatusNotFound:
		code = apperror.CodeNotFound
	case he.Code == http.StatusUnauthorized:
		code = apperror.CodeUnauthorized
	case he.Code == http.StatusForbidden:
		code = apperror.CodeForbidden
	case he.Code >= 400 && he.Code < 500:
		code = apperror.CodeInvalidArgument
	}

	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok {
		message = m
	}
	if he.Code >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "err", err)
	}
	_ = c.JSON(he.Code, errorResponse{Code: code, Message: message})
}
