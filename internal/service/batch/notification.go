package batch

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/common/database"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

// BookTitleRepository はコピーIDから書名を解決します
type BookTitleRepository interface {
	GetTitlesByCopyIDs(ctx context.Context, copyIDs []int64) (map[int64]string, error)
}

// NotificationBatchService は通知バッチ処理を担当します
type NotificationBatchService struct {
	args             []model.Notification
	db               *database.DB
	notificationRepo repository.NotificationRepository
	bookRepo         BookTitleRepository
	cfg              *config.Config
}

// NewNotificationBatchService は新しいNotificationBatchServiceを作成します
func NewNotificationBatchService(cfg *config.Config) (*NotificationBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	// database.DBをrepository.DBに変換
	repoDb := &repository.DB{DB: db.DB}

	return &NotificationBatchService{
		db:               db,
		notificationRepo: repository.NewNotificationRepository(repoDb),
		bookRepo:         repository.NewBookRepository(repoDb),
		cfg:              cfg,
	}, nil
}

// Close は終了処理を行います
func (s *NotificationBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetArgs は通知バッチ処理の引数を設定します
func (s *NotificationBatchService) SetArgs(args []model.Notification) {
	s.args = args
}

// ParseNotifications は予約バッチのタスク出力から通知を取り出します
func ParseNotifications(input []byte) ([]model.Notification, error) {
	var out TaskOutput
	if err := json.Unmarshal(input, &out); err != nil {
		return nil, fmt.Errorf("failed to parse task input: %w", err)
	}
	if out.Notifications == nil {
		return []model.Notification{}, nil
	}
	return out.Notifications, nil
}

// Run は通知バッチ処理を実行します
func (s *NotificationBatchService) Run(ctx context.Context) error {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationBatchService.Run")
	defer seg.Close(nil)

	notifications := s.args
	log.Printf("Starting notification batch process for %d notifications...", len(notifications))

	// セグメントにメタデータを追加
	if err := seg.AddMetadata("notification_count", len(notifications)); err != nil {
		log.Printf("Failed to add notification_count metadata: %v", err)
	}

	startTime := time.Now()

	bookTitleMap, err := s.getBookTitleMap(ctx, notifications)
	if err != nil {
		seg.Close(err)
		return err
	}

	// 通知をレコードに変換
	records := make([]model.NotificationRecord, len(notifications))
	for i, notification := range notifications {
		record, err := notification.ToNotificationRecord(bookTitleMap)
		if err != nil {
			seg.Close(err)
			return err
		}
		records[i] = *record
	}

	if err := s.notificationRepo.CreateNotifications(ctx, records); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create notifications: %w", err)
	}

	duration := time.Since(startTime)

	// セグメントにメタデータを追加
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}
	if err := seg.AddMetadata("book_count", len(bookTitleMap)); err != nil {
		log.Printf("Failed to add book_count metadata: %v", err)
	}

	log.Printf("Notification batch process completed successfully. Duration: %v", duration)
	return nil
}

// 通知データに含まれるコピーIDから書名を取得する
// N+1とならないように重複のないコピーIDを集めてから1回で問い合わせる
func (s *NotificationBatchService) getBookTitleMap(ctx context.Context, notifications []model.Notification) (map[int64]string, error) {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationBatchService.getBookTitleMap")
	defer seg.Close(nil)

	copyIDs := make([]int64, 0)
	for _, notification := range notifications {
		// 共通通知は書名を使わない
		if notification.Type != model.NotificationTypeReservationExpired {
			continue
		}

		copyID, err := notification.CopyID()
		if err != nil {
			seg.Close(err)
			return nil, err
		}

		// copyIDが重複している場合はスキップ
		if slices.Contains(copyIDs, copyID) {
			continue
		}
		copyIDs = append(copyIDs, copyID)
	}

	// セグメントにメタデータを追加
	if err := seg.AddMetadata("unique_copy_count", len(copyIDs)); err != nil {
		log.Printf("Failed to add unique_copy_count metadata: %v", err)
	}

	if len(copyIDs) == 0 {
		return map[int64]string{}, nil
	}

	titles, err := s.bookRepo.GetTitlesByCopyIDs(ctx, copyIDs)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	return titles, nil
}
