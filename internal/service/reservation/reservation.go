package reservation

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"github.com/uma-arai/sbcntr-library/internal/service/availability"
)

// DefaultMaxActiveReservations は1ユーザーが同時に保持できる予約数の既定値です
const DefaultMaxActiveReservations = 3

// Service は予約の作成と取り消しを担当します
// 同じコピーに対する Reserve と Cancel はコピー行のロックで直列化されます
type Service struct {
	repo      repository.ReservationRepository
	maxActive int
	now       func() time.Time
}

// NewService は新しい reservation.Service を作成します
// maxActive が0以下の場合は DefaultMaxActiveReservations を使用します
func NewService(repo repository.ReservationRepository, maxActive int) *Service {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveReservations
	}
	return &Service{
		repo:      repo,
		maxActive: maxActive,
		now:       time.Now,
	}
}

// Reserve はコピーを予約します
// 検証は InvalidRange, CopyUnavailable, ReservationLimitExceeded の順に行います
func (s *Service) Reserve(ctx context.Context, userID, copyID int64, date, start, end time.Time) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationService.Reserve")
	defer seg.Close(nil)

	if !end.After(start) {
		return nil, apperror.Wrap(apperror.CodeInvalidRange, apperror.ErrInvalidRange,
			"end %s is not after start %s", end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}

	var created *model.Reservation
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		target, err := tx.LockCopy(ctx, copyID)
		if err != nil {
			return err
		}

		reservations, err := tx.ActiveReservationsByCopy(ctx, copyID)
		if err != nil {
			return err
		}
		borrows, err := tx.ActiveBorrowsByCopy(ctx, copyID)
		if err != nil {
			return err
		}
		if status := availability.ComputeStatus(*target, reservations, borrows); status != model.CopyStatusAvailable {
			return apperror.Wrap(apperror.CodeCopyUnavailable, apperror.ErrCopyUnavailable, "copy %d is %s", copyID, status)
		}

		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		count, err := tx.CountActiveReservationsByUser(ctx, userID)
		if err != nil {
			return err
		}
		if count >= s.maxActive {
			return apperror.Wrap(apperror.CodeReservationLimitExceeded, apperror.ErrReservationLimitExceeded,
				"user %d already holds %d active reservations (limit %d)", userID, count, s.maxActive)
		}

		r := &model.Reservation{
			UserID:      userID,
			CopyID:      copyID,
			ReserveDate: date.UTC(),
			StartTime:   start.UTC(),
			EndTime:     end.UTC(),
			Status:      model.ReservationStatusActive,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}

	log.Printf("Reservation %d created: user=%d copy=%d", created.ID, created.UserID, created.CopyID)
	return created, nil
}

// Cancel は利用者本人のアクティブな予約を取り消します
// コピーの状態は導出されるため、貸出中のコピーは取り消し後も貸出中のままです
func (s *Service) Cancel(ctx context.Context, userID, reservationID int64) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationService.Cancel")
	defer seg.Close(nil)

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// 予約のコピーIDは変わらないため、ロック前に参照してコピーから順にロックする
		current, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if _, err := tx.LockCopy(ctx, current.CopyID); err != nil {
			return err
		}

		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !r.IsActive() {
			return apperror.New(apperror.CodeNotFound, "reservation %d is not active", reservationID)
		}
		if r.UserID != userID {
			return apperror.New(apperror.CodeForbidden, "reservation %d belongs to another user", reservationID)
		}

		return tx.UpdateReservationStatus(ctx, reservationID, model.ReservationStatusCancelled, s.now().UTC())
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return err
	}

	log.Printf("Reservation %d cancelled by user %d", reservationID, userID)
	return nil
}

// ListByUser は利用者のアクティブな予約を開始時刻順に返します
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]model.ReservationDetail, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationService.ListByUser")
	defer seg.Close(nil)

	details, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if details == nil {
		details = []model.ReservationDetail{}
	}
	return details, nil
}
