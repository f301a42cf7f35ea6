package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// ReservationRepository は予約の参照系を担当するインターフェースです
// 更新はすべて Tx を経由して行います
type ReservationRepository interface {
	TxRunner
	ListActiveByUser(ctx context.Context, userID int64) ([]model.ReservationDetail, error)
	ListActiveByBook(ctx context.Context, bookID int64) ([]model.Reservation, error)
	GetExpired(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

type ReservationRepositoryImpl struct {
	db *DB
}

func NewReservationRepository(db *DB) *ReservationRepositoryImpl {
	return &ReservationRepositoryImpl{db: db}
}

// RunInTx はトランザクションを開始して fn を実行します
func (r *ReservationRepositoryImpl) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.db.RunInTx(ctx, fn)
}

// ListActiveByUser はユーザーのアクティブな予約を書誌・配架情報付きで取得します
func (r *ReservationRepositoryImpl) ListActiveByUser(ctx context.Context, userID int64) ([]model.ReservationDetail, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.ListActiveByUser")
	defer seg.Close(nil)

	query := `
		SELECT
			r.id,
			r.user_id,
			r.copy_id,
			r.reserve_date,
			r.start_time,
			r.end_time,
			r.status,
			r.created_at,
			r.completed_at,
			b.id AS book_id,
			b.title,
			c.language,
			c.floor,
			c.section,
			c.shelf,
			c.row_num
		FROM reservations r
		JOIN book_copies c ON c.id = r.copy_id
		JOIN books b ON b.id = c.book_id
		WHERE r.user_id = $1
		AND r.status = $2
		ORDER BY r.start_time ASC, r.id ASC
	`

	var details []model.ReservationDetail
	if err := r.db.SelectContext(ctx, &details, query, userID, model.ReservationStatusActive); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query reservations for user %d: %w", userID, err)
	}
	return details, nil
}

// ListActiveByBook は書籍の全コピーに対するアクティブな予約を取得します
func (r *ReservationRepositoryImpl) ListActiveByBook(ctx context.Context, bookID int64) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.ListActiveByBook")
	defer seg.Close(nil)

	query := `
		SELECT ` + prefixed("r", reservationColumns) + `
		FROM reservations r
		JOIN book_copies c ON c.id = r.copy_id
		WHERE c.book_id = $1
		AND r.status = $2
		ORDER BY r.id
	`

	var reservations []model.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, bookID, model.ReservationStatusActive); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query reservations for book %d: %w", bookID, err)
	}
	return reservations, nil
}

// GetExpired は終了時刻を過ぎてもアクティブなままの予約を取得します
func (r *ReservationRepositoryImpl) GetExpired(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.GetExpired")
	defer seg.Close(nil)

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1
		AND end_time < $2
		ORDER BY end_time ASC
	`

	var reservations []model.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, model.ReservationStatusActive, now.UTC()); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	return reservations, nil
}
