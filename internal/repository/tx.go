package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// TxRunner はトランザクション境界を提供します
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx はトランザクション内で行う予約・貸出の操作です
// Lock* は対象行を SELECT ... FOR UPDATE でロックし、コミットまで他のトランザクションを待たせます
// ロックは常にコピー、ユーザー、予約・貸出の順に取得します
// Get* はロックを取らない参照で、ロック前にコピーIDを知るために使います
type Tx interface {
	GetReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	GetBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error)

	LockCopy(ctx context.Context, copyID int64) (*model.BookCopy, error)
	LockUser(ctx context.Context, userID int64) error
	LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	LockBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error)

	ActiveReservationsByCopy(ctx context.Context, copyID int64) ([]model.Reservation, error)
	ActiveBorrowsByCopy(ctx context.Context, copyID int64) ([]model.Borrow, error)
	CountActiveReservationsByUser(ctx context.Context, userID int64) (int, error)

	InsertReservation(ctx context.Context, reservation *model.Reservation) error
	UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error
	InsertBorrow(ctx context.Context, borrow *model.Borrow) error
	MarkBorrowReturned(ctx context.Context, borrowID int64, at time.Time) error
}

type sqlxTx struct {
	tx *sqlx.Tx
}

const (
	copyColumns        = `id, book_id, language, floor, section, shelf, row_num, created_at`
	reservationColumns = `id, user_id, copy_id, reserve_date, start_time, end_time, status, created_at, completed_at`
	borrowColumns      = `id, user_id, copy_id, language, borrowed_at, return_date, returned_at`
)

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Wrap(apperror.CodeNotFound, err, format, args...)
	}
	return fmt.Errorf("failed to get "+format+": %w", append(args, err)...)
}

// GetReservation は予約をロックせずに取得します
func (t *sqlxTx) GetReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.GetReservation")
	defer seg.Close(nil)

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	var r model.Reservation
	if err := t.tx.GetContext(ctx, &r, query, reservationID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "reservation %d", reservationID)
	}
	return &r, nil
}

// GetBorrow は貸出をロックせずに取得します
func (t *sqlxTx) GetBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.GetBorrow")
	defer seg.Close(nil)

	query := `SELECT ` + borrowColumns + ` FROM borrows WHERE id = $1`

	var b model.Borrow
	if err := t.tx.GetContext(ctx, &b, query, borrowID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "borrow %d", borrowID)
	}
	return &b, nil
}

// LockCopy は蔵書コピーの行ロックを取得します
func (t *sqlxTx) LockCopy(ctx context.Context, copyID int64) (*model.BookCopy, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.LockCopy")
	defer seg.Close(nil)

	query := `SELECT ` + copyColumns + ` FROM book_copies WHERE id = $1 FOR UPDATE`

	var c model.BookCopy
	if err := t.tx.GetContext(ctx, &c, query, copyID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "copy %d", copyID)
	}
	return &c, nil
}

// LockUser はユーザー単位の予約数チェックを直列化するためにユーザー行をロックします
func (t *sqlxTx) LockUser(ctx context.Context, userID int64) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.LockUser")
	defer seg.Close(nil)

	var id int64
	if err := t.tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		seg.Close(err)
		return notFoundOr(err, "user %d", userID)
	}
	return nil
}

// LockReservation は予約の行ロックを取得します
func (t *sqlxTx) LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.LockReservation")
	defer seg.Close(nil)

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	var r model.Reservation
	if err := t.tx.GetContext(ctx, &r, query, reservationID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "reservation %d", reservationID)
	}
	return &r, nil
}

// LockBorrow は貸出の行ロックを取得します
func (t *sqlxTx) LockBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.LockBorrow")
	defer seg.Close(nil)

	query := `SELECT ` + borrowColumns + ` FROM borrows WHERE id = $1 FOR UPDATE`

	var b model.Borrow
	if err := t.tx.GetContext(ctx, &b, query, borrowID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "borrow %d", borrowID)
	}
	return &b, nil
}

// ActiveReservationsByCopy はコピーを参照しているアクティブな予約を取得します
func (t *sqlxTx) ActiveReservationsByCopy(ctx context.Context, copyID int64) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.ActiveReservationsByCopy")
	defer seg.Close(nil)

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE copy_id = $1 AND status = $2 ORDER BY id`

	var reservations []model.Reservation
	if err := t.tx.SelectContext(ctx, &reservations, query, copyID, model.ReservationStatusActive); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query active reservations for copy %d: %w", copyID, err)
	}
	return reservations, nil
}

// ActiveBorrowsByCopy はコピーを参照している未返却の貸出を取得します
func (t *sqlxTx) ActiveBorrowsByCopy(ctx context.Context, copyID int64) ([]model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.ActiveBorrowsByCopy")
	defer seg.Close(nil)

	query := `SELECT ` + borrowColumns + ` FROM borrows WHERE copy_id = $1 AND returned_at IS NULL ORDER BY id`

	var borrows []model.Borrow
	if err := t.tx.SelectContext(ctx, &borrows, query, copyID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query active borrows for copy %d: %w", copyID, err)
	}
	return borrows, nil
}

// CountActiveReservationsByUser はユーザーのアクティブな予約数を数えます
func (t *sqlxTx) CountActiveReservationsByUser(ctx context.Context, userID int64) (int, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.CountActiveReservationsByUser")
	defer seg.Close(nil)

	var count int
	query := `SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND status = $2`
	if err := t.tx.GetContext(ctx, &count, query, userID, model.ReservationStatusActive); err != nil {
		seg.Close(err)
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return count, nil
}

// InsertReservation は予約を作成し、採番されたIDと作成日時を設定します
func (t *sqlxTx) InsertReservation(ctx context.Context, reservation *model.Reservation) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.InsertReservation")
	defer seg.Close(nil)

	query := `
		INSERT INTO reservations (
			user_id, copy_id, reserve_date, start_time, end_time, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id`

	err := t.tx.QueryRowxContext(ctx,
		query,
		reservation.UserID,
		reservation.CopyID,
		reservation.ReserveDate,
		reservation.StartTime,
		reservation.EndTime,
		reservation.Status,
		reservation.CreatedAt,
	).Scan(&reservation.ID)
	if err != nil {
		seg.Close(err)
		if isUniqueViolation(err) {
			return apperror.Wrap(apperror.CodeCopyUnavailable, err, "copy %d already has an active reservation", reservation.CopyID)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// UpdateReservationStatus は予約のステータスを更新し、完了日時を記録します
func (t *sqlxTx) UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.UpdateReservationStatus")
	defer seg.Close(nil)

	query := `
		UPDATE reservations
		SET status = $1,
			completed_at = $2
		WHERE id = $3
	`

	result, err := t.tx.ExecContext(ctx, query, status, at, reservationID)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to update reservation status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err := apperror.New(apperror.CodeNotFound, "no reservation found with ID %d", reservationID)
		seg.Close(err)
		return err
	}

	return nil
}

// InsertBorrow は貸出を作成します
func (t *sqlxTx) InsertBorrow(ctx context.Context, borrow *model.Borrow) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.InsertBorrow")
	defer seg.Close(nil)

	query := `
		INSERT INTO borrows (
			user_id, copy_id, language, borrowed_at, return_date
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING id`

	err := t.tx.QueryRowxContext(ctx,
		query,
		borrow.UserID,
		borrow.CopyID,
		borrow.Language,
		borrow.BorrowedAt,
		borrow.ReturnDate,
	).Scan(&borrow.ID)
	if err != nil {
		seg.Close(err)
		if isUniqueViolation(err) {
			return apperror.Wrap(apperror.CodeCopyUnavailable, err, "copy %d is already borrowed", borrow.CopyID)
		}
		return fmt.Errorf("failed to create borrow: %w", err)
	}
	return nil
}

// MarkBorrowReturned は貸出を返却済みにします
func (t *sqlxTx) MarkBorrowReturned(ctx context.Context, borrowID int64, at time.Time) error {
	ctx, seg := xray.BeginSubsegment(ctx, "Tx.MarkBorrowReturned")
	defer seg.Close(nil)

	result, err := t.tx.ExecContext(ctx, `UPDATE borrows SET returned_at = $1 WHERE id = $2 AND returned_at IS NULL`, at, borrowID)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to mark borrow returned: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err := apperror.New(apperror.CodeNotFound, "no active borrow found with ID %d", borrowID)
		seg.Close(err)
		return err
	}
	return nil
}
