package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/common/database"
	"github.com/uma-arai/sbcntr-library/internal/handler"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"github.com/uma-arai/sbcntr-library/internal/service/borrow"
	"github.com/uma-arai/sbcntr-library/internal/service/catalog"
	"github.com/uma-arai/sbcntr-library/internal/service/reservation"
	"github.com/uma-arai/sbcntr-library/internal/service/review"
	"github.com/uma-arai/sbcntr-library/internal/service/user"
)

const shutdownTimeout = 10 * time.Second

func main() {
	initSchema := flag.Bool("init-schema", false, "起動時にテーブルとインデックスを作成する")
	flag.Parse()

	// logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig("")
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			logger.Warn("failed to configure X-Ray, using defaults", "err", err)
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	repoDb := &repository.DB{DB: db.DB}
	if *initSchema {
		if err := repoDb.InitSchema(context.Background()); err != nil {
			logger.Error("failed to init schema", "err", err)
			os.Exit(1)
		}
	}

	// repos
	books := repository.NewBookRepository(repoDb)
	copies := repository.NewCopyRepository(repoDb)
	reservations := repository.NewReservationRepository(repoDb)

	// services
	svc := handler.Services{
		Catalog:       catalog.NewService(books, copies, reservations),
		Reservation:   reservation.NewService(reservations, cfg.Library.MaxActiveReservations),
		Review:        review.NewService(repository.NewReviewRepository(repoDb)),
		Borrow:        borrow.NewService(repository.NewBorrowRepository(repoDb)),
		User:          user.NewService(repository.NewUserRepository(repoDb), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Notifications: repository.NewNotificationRepository(repoDb),
	}

	e := handler.NewServer(cfg, svc, logger)

	go func() {
		logger.Info("starting server", "port", cfg.HTTP.Port)
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("server stopped")
}
