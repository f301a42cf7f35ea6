package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// CopyRepository は蔵書コピーの参照を担当するインターフェースです
type CopyRepository interface {
	ListByBookID(ctx context.Context, bookID int64) ([]model.BookCopy, error)
	ListActiveBorrowsByBookID(ctx context.Context, bookID int64) ([]model.Borrow, error)
}

type CopyRepositoryImpl struct {
	db *DB
}

func NewCopyRepository(db *DB) *CopyRepositoryImpl {
	return &CopyRepositoryImpl{db: db}
}

// ListByBookID は書籍のコピーをID順に取得します
func (r *CopyRepositoryImpl) ListByBookID(ctx context.Context, bookID int64) ([]model.BookCopy, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CopyRepository.ListByBookID")
	defer seg.Close(nil)

	query := `SELECT ` + copyColumns + ` FROM book_copies WHERE book_id = $1 ORDER BY id`

	var copies []model.BookCopy
	if err := r.db.SelectContext(ctx, &copies, query, bookID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query copies for book %d: %w", bookID, err)
	}
	return copies, nil
}

// ListActiveBorrowsByBookID は書籍の全コピーに対する未返却の貸出を取得します
func (r *CopyRepositoryImpl) ListActiveBorrowsByBookID(ctx context.Context, bookID int64) ([]model.Borrow, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CopyRepository.ListActiveBorrowsByBookID")
	defer seg.Close(nil)

	query := `
		SELECT ` + prefixed("br", borrowColumns) + `
		FROM borrows br
		JOIN book_copies c ON c.id = br.copy_id
		WHERE c.book_id = $1
		AND br.returned_at IS NULL
		ORDER BY br.id
	`

	var borrows []model.Borrow
	if err := r.db.SelectContext(ctx, &borrows, query, bookID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query borrows for book %d: %w", bookID, err)
	}
	return borrows, nil
}

// prefixed はカンマ区切りのカラム一覧にテーブル別名を付与します
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
