package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/service/user"
)

// POST /v1/auth/register
func (h *Handler) SignUp(c echo.Context) error {
	var req RegisterReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	u, err := h.svc.User.Register(c.Request().Context(), user.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Address:   req.Address,
		NIC:       req.NIC,
		Mobile:    req.Mobile,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// POST /v1/auth/login
func (h *Handler) Login(c echo.Context) error {
	var req LoginReq
	if err := h.bindAndValidate(c, &req); err != nil {
		return h.writeError(c, err)
	}

	token, u, err := h.svc.User.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, LoginResp{Token: token, UserID: u.ID})
}

// GET /v1/users/me
func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.User.Profile(c.Request().Context(), currentUserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// bindAndValidate はリクエストボディを読み込み検証します
func (h *Handler) bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.Wrap(apperror.CodeInvalidArgument, err, "invalid JSON")
	}
	if err := h.v.Struct(req); err != nil {
		return apperror.Wrap(apperror.CodeInvalidArgument, err, "validation error: %s", err.Error())
	}
	return nil
}
