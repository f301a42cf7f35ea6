package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/service/user"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"

	tracingSegmentName = "sbcntr-library"
)

// registerMiddlewares は全ルート共通のミドルウェアを登録します
func registerMiddlewares(e *echo.Echo, logger *slog.Logger, enableTracing bool) {
	e.Use(middleware.Recover())

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	if enableTracing {
		e.Use(echo.WrapMiddleware(func(next http.Handler) http.Handler {
			return xray.Handler(xray.NewFixedSegmentNamer(tracingSegmentName), next)
		}))
	}

	e.Use(accessLog(logger))
}

func accessLog(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// ステータスを確定させてから記録する
				c.Error(err)
			}
			lat := time.Since(start).Milliseconds()

			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			logger.Info("http",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency_ms", lat,
				"req_id", rid,
				"ip", c.RealIP(),
			)
			return nil
		}
	}
}

// authenticate はBearerトークンを検証し、利用者IDとロールをコンテキストに設定します
func (h *Handler) authenticate() []echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    h.secret,
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return &user.Claims{} },
		ErrorHandler: func(c echo.Context, err error) error {
			return h.writeError(c, apperror.Wrap(apperror.CodeUnauthorized, err, "missing or invalid token"))
		},
	})

	extract := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := c.Get("user").(*jwt.Token)
			if !ok || tok == nil {
				return h.writeError(c, apperror.New(apperror.CodeUnauthorized, "missing token"))
			}
			claims, ok := tok.Claims.(*user.Claims)
			if !ok {
				return h.writeError(c, apperror.New(apperror.CodeUnauthorized, "invalid token claims"))
			}
			uid, err := claims.UserID()
			if err != nil {
				return h.writeError(c, apperror.Wrap(apperror.CodeUnauthorized, err, "invalid token subject"))
			}

			c.Set(ctxUserID, uid)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}

	return []echo.MiddlewareFunc{verify, extract}
}

// requireStaff は職員ロール以外を 403 にします
func (h *Handler) requireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, _ := c.Get(ctxRole).(string)
		if !model.IsStaffRole(role) {
			return h.writeError(c, apperror.New(apperror.CodeForbidden, "staff role required"))
		}
		return next(c)
	}
}

func currentUserID(c echo.Context) int64 {
	uid, _ := c.Get(ctxUserID).(int64)
	return uid
}
