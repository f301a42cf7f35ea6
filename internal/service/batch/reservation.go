package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	jsoniter "github.com/json-iterator/go"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/common/database"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errAlreadyCompleted はロック取得時点で予約が既に完了していたことを表します
var errAlreadyCompleted = errors.New("reservation already completed")

// SFNClient は Step Functions のタスク結果通知に使用するクライアントです
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// TaskOutput は Step Functions に返却するタスク出力です
// 後続の通知バッチはこの形式をそのまま入力として受け取ります
type TaskOutput struct {
	Notifications []model.Notification `json:"notifications"`
}

// ReservationBatchService は受け取り期限を過ぎた予約を期限切れにするバッチ処理を担当します
type ReservationBatchService struct {
	db              *database.DB
	reservationRepo repository.ReservationRepository
	sfnClient       SFNClient
	cfg             *config.Config
	now             func() time.Time
}

// NewReservationBatchService は新しいReservationBatchServiceを作成します
// sfnClient が nil の場合はタスク結果の通知を行いません
func NewReservationBatchService(cfg *config.Config, sfnClient SFNClient) (*ReservationBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	// database.DBをrepository.DBに変換
	repoDb := &repository.DB{DB: db.DB}

	return &ReservationBatchService{
		db:              db,
		reservationRepo: repository.NewReservationRepository(repoDb),
		sfnClient:       sfnClient,
		cfg:             cfg,
		now:             time.Now,
	}, nil
}

// Close は終了処理を行います
func (s *ReservationBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run は予約バッチ処理を実行します
func (s *ReservationBatchService) Run(ctx context.Context) error {
	// X-Rayセグメントの作成
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()

	events, err := s.expireReservations(ctx)
	if err != nil {
		seg.Close(err)
		return utils.GetStackWithError(fmt.Errorf("failed to expire reservations: %w", err))
	}

	if err := s.sendTaskSuccess(ctx, events); err != nil {
		seg.Close(err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)

	// セグメントにメタデータを追加
	if err := seg.AddMetadata("expired_count", len(events)); err != nil {
		log.Printf("Failed to add expired_count metadata: %v", err)
	}
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}

	log.Printf("Reservation batch process completed successfully. Expired: %d, Duration: %v", len(events), duration)
	return nil
}

// expireReservations は終了時刻を過ぎたアクティブな予約を expired にします
// 予約ごとにトランザクションを分け、失敗した予約はログに残して次へ進みます
func (s *ReservationBatchService) expireReservations(ctx context.Context) ([]model.ReservationEvent, error) {
	now := s.now().UTC()

	reservations, err := s.reservationRepo.GetExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired reservations: %w", err)
	}

	log.Printf("Found %d reservations past their end time", len(reservations))

	events := make([]model.ReservationEvent, 0, len(reservations))
	for _, reservation := range reservations {
		err := s.reservationRepo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.LockCopy(ctx, reservation.CopyID); err != nil {
				return err
			}
			locked, err := tx.LockReservation(ctx, reservation.ID)
			if err != nil {
				return err
			}
			// 取得後に取り消し・貸出された予約はそのまま
			if !locked.IsActive() {
				return errAlreadyCompleted
			}
			return tx.UpdateReservationStatus(ctx, locked.ID, model.ReservationStatusExpired, now)
		})
		if errors.Is(err, errAlreadyCompleted) {
			log.Printf("Reservation %d was completed concurrently, skipping", reservation.ID)
			continue
		}
		if err != nil {
			log.Printf("Failed to expire reservation %d: %v", reservation.ID, err)
			continue
		}

		events = append(events, model.ReservationEvent{
			ReservationID: reservation.ID,
			UserID:        reservation.UserID,
			CopyID:        reservation.CopyID,
			Status:        model.ReservationStatusExpired,
			EndTime:       reservation.EndTime,
			CreatedAt:     now,
		})
	}

	return events, nil
}

// buildTaskOutput はイベントを通知形式に変換し、タスク出力のJSONを生成します
func buildTaskOutput(events []model.ReservationEvent) ([]byte, error) {
	notifications := make([]model.Notification, len(events))
	for i, event := range events {
		notifications[i] = model.NewReservationExpiredNotification(event)
	}

	output, err := json.Marshal(TaskOutput{Notifications: notifications})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifications: %w", err)
	}
	return output, nil
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知し、イベントを返却します
func (s *ReservationBatchService) sendTaskSuccess(ctx context.Context, events []model.ReservationEvent) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if os.Getenv("ENV") == "LOCAL" || s.sfnClient == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	output, err := buildTaskOutput(events)
	if err != nil {
		return err
	}

	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	}

	if _, err := s.sfnClient.SendTaskSuccess(ctx, input); err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with notifications: %s", string(output))
	return nil
}

// SendTaskFailure はバッチの失敗を Step Functions に通知します
func (s *ReservationBatchService) SendTaskFailure(ctx context.Context, cause error) error {
	if os.Getenv("ENV") == "LOCAL" || s.sfnClient == nil {
		return nil
	}

	input := &sfn.SendTaskFailureInput{
		TaskToken: aws.String(s.cfg.SFN.TaskToken),
		Error:     aws.String("Batch process failed"),
		Cause:     aws.String(cause.Error()),
	}
	if _, err := s.sfnClient.SendTaskFailure(ctx, input); err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}
