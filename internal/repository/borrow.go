package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// BorrowRepository は貸出の参照を担当するインターフェースです
// 貸出・返却の更新は Tx を経由して行います
type BorrowRepository interface {
	TxRunner
	GetByID(ctx context.Context, borrowID int64) (*model.Borrow, error)
	ListByUser(ctx context.Context, userID int64) ([]model.BorrowDetail, error)
}

type BorrowRepositoryImpl struct {
	db *DB
}

func NewBorrowRepository(db *DB) *BorrowRepositoryImpl {
	return &BorrowRepositoryImpl{db: db}
}

func (r *BorrowRepositoryImpl) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.db.RunInTx(ctx, fn)
}

func (r *BorrowRepositoryImpl) GetByID(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BorrowRepository.GetByID")
	defer seg.Close(nil)

	var b model.Borrow
	if err := r.db.GetContext(ctx, &b, `SELECT `+borrowColumns+` FROM borrows WHERE id = $1`, borrowID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "borrow %d", borrowID)
	}
	return &b, nil
}

// ListByUser はユーザーの貸出履歴を新しい順に取得します
// 返却済みの貸出も含み、レビュー済みかどうかを付与します
func (r *BorrowRepositoryImpl) ListByUser(ctx context.Context, userID int64) ([]model.BorrowDetail, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BorrowRepository.ListByUser")
	defer seg.Close(nil)

	query := `
		SELECT ` + prefixed("br", borrowColumns) + `,
			b.id AS book_id,
			b.title,
			c.floor,
			c.section,
			c.shelf,
			c.row_num,
			EXISTS (SELECT 1 FROM reviews rv WHERE rv.borrow_id = br.id) AS reviewed
		FROM borrows br
		JOIN book_copies c ON c.id = br.copy_id
		JOIN books b ON b.id = c.book_id
		WHERE br.user_id = $1
		ORDER BY br.borrowed_at DESC, br.id DESC
	`

	details := make([]model.BorrowDetail, 0)
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query borrows for user %d: %w", userID, err)
	}
	return details, nil
}
