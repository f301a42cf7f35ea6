package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"github.com/uma-arai/sbcntr-library/internal/service/borrow"
	"github.com/uma-arai/sbcntr-library/internal/service/catalog"
	"github.com/uma-arai/sbcntr-library/internal/service/reservation"
	"github.com/uma-arai/sbcntr-library/internal/service/review"
	"github.com/uma-arai/sbcntr-library/internal/service/user"
)

// Services はハンドラーが呼び出すドメインサービスの集合です
type Services struct {
	Catalog       *catalog.Service
	Reservation   *reservation.Service
	Review        *review.Service
	Borrow        *borrow.Service
	User          *user.Service
	Notifications repository.NotificationRepository
}

// Handler はHTTPリクエストをドメインサービスの呼び出しに変換します
type Handler struct {
	svc    Services
	v      *validator.Validate
	log    *slog.Logger
	loc    *time.Location
	secret []byte
}

func New(cfg *config.Config, svc Services, logger *slog.Logger) *Handler {
	loc := cfg.Library.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		svc:    svc,
		v:      validator.New(),
		log:    logger,
		loc:    loc,
		secret: []byte(cfg.Auth.JWTSecret),
	}
}

// NewServer はミドルウェアとルートを登録した echo インスタンスを返します
func NewServer(cfg *config.Config, svc Services, logger *slog.Logger) *echo.Echo {
	h := New(cfg, svc, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = h.httpErrorHandler

	registerMiddlewares(e, logger, cfg.EnableTracing)
	h.Routes(e)
	return e
}

// Routes はルートを登録します
func (h *Handler) Routes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Public
	pub := e.Group("/v1")
	pub.POST("/auth/register", h.SignUp)
	pub.POST("/auth/login", h.Login)

	// Auth
	auth := e.Group("/v1", h.authenticate()...)
	auth.GET("/users/me", h.Me)

	// Catalog
	auth.GET("/categories", h.ListCategories)
	auth.GET("/books", h.ListBooks)
	auth.POST("/books/filter", h.FilterBooks)
	auth.GET("/books/:id", h.GetBook)
	auth.GET("/books/:id/copies", h.GetCopies)
	auth.GET("/books/:id/reviews", h.ListReviews)

	// Reservations
	auth.POST("/reservations", h.CreateReservation)
	auth.DELETE("/reservations/:id", h.CancelReservation)
	auth.GET("/reservations/me", h.MyReservations)

	// Reviews
	auth.POST("/reviews", h.CreateReview)

	// Borrows
	auth.GET("/borrows/me", h.MyBorrows)
	auth.POST("/borrows", h.Checkout, h.requireStaff)
	auth.POST("/borrows/:id/return", h.ReturnBorrow, h.requireStaff)

	// Notifications
	auth.GET("/notifications/me", h.MyNotifications)
	auth.POST("/notifications/:id/read", h.MarkNotificationRead)
}
