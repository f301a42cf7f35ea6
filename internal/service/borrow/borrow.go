package borrow

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

// Service はカウンターでの貸出と返却を担当します
type Service struct {
	repo repository.BorrowRepository
	now  func() time.Time
}

func NewService(repo repository.BorrowRepository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Checkout はコピーを貸し出します
// 他の利用者がアクティブな予約を持つコピーは貸し出せません。本人の予約は borrowed として完了させます
// 予約行の更新はコピーとユーザーのロックを取得した後に行います
func (s *Service) Checkout(ctx context.Context, userID, copyID int64, returnDate time.Time) (*model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BorrowService.Checkout")
	defer seg.Close(nil)

	now := s.now().UTC()
	if !returnDate.After(now) {
		return nil, apperror.Wrap(apperror.CodeInvalidRange, apperror.ErrInvalidRange,
			"return date %s is not after %s", returnDate.UTC().Format(time.RFC3339), now.Format(time.RFC3339))
	}

	var created *model.Borrow
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		target, err := tx.LockCopy(ctx, copyID)
		if err != nil {
			return err
		}
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}

		borrows, err := tx.ActiveBorrowsByCopy(ctx, copyID)
		if err != nil {
			return err
		}
		if len(borrows) > 0 {
			return apperror.Wrap(apperror.CodeCopyUnavailable, apperror.ErrCopyUnavailable, "copy %d is already borrowed", copyID)
		}

		reservations, err := tx.ActiveReservationsByCopy(ctx, copyID)
		if err != nil {
			return err
		}
		for _, r := range reservations {
			if r.UserID != userID {
				return apperror.Wrap(apperror.CodeCopyUnavailable, apperror.ErrCopyUnavailable, "copy %d is reserved by another user", copyID)
			}
			if err := tx.UpdateReservationStatus(ctx, r.ID, model.ReservationStatusBorrowed, now); err != nil {
				return err
			}
		}

		b := &model.Borrow{
			UserID:     userID,
			CopyID:     copyID,
			Language:   target.Language,
			BorrowedAt: now,
			ReturnDate: returnDate.UTC(),
		}
		if err := tx.InsertBorrow(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}

	log.Printf("Borrow %d created: user=%d copy=%d", created.ID, created.UserID, created.CopyID)
	return created, nil
}

// Return は貸出を返却済みにします。返却済みの貸出は NotFound です
func (s *Service) Return(ctx context.Context, borrowID int64) error {
	ctx, seg := xray.BeginSubsegment(ctx, "BorrowService.Return")
	defer seg.Close(nil)

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetBorrow(ctx, borrowID)
		if err != nil {
			return err
		}
		if _, err := tx.LockCopy(ctx, current.CopyID); err != nil {
			return err
		}

		b, err := tx.LockBorrow(ctx, borrowID)
		if err != nil {
			return err
		}
		if !b.IsActive() {
			return apperror.New(apperror.CodeNotFound, "borrow %d has already been returned", borrowID)
		}
		return tx.MarkBorrowReturned(ctx, borrowID, s.now().UTC())
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return err
	}

	log.Printf("Borrow %d returned", borrowID)
	return nil
}

// ListByUser は利用者の貸出履歴を新しい順に返します
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]model.BorrowDetail, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BorrowService.ListByUser")
	defer seg.Close(nil)

	details, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if details == nil {
		details = []model.BorrowDetail{}
	}
	return details, nil
}
