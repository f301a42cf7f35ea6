package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// BorrowContext はレビュー対象の貸出と、そのコピーが属する書籍IDです
type BorrowContext struct {
	BorrowID int64 `db:"borrow_id"`
	UserID   int64 `db:"user_id"`
	CopyID   int64 `db:"copy_id"`
	BookID   int64 `db:"book_id"`
}

// ReviewRepository はレビューの永続化を担当するインターフェースです
type ReviewRepository interface {
	GetBorrowContext(ctx context.Context, borrowID int64) (*BorrowContext, error)
	ExistsForBorrow(ctx context.Context, borrowID int64) (bool, error)
	Create(ctx context.Context, review *model.Review) error
	ListByBook(ctx context.Context, bookID int64) ([]model.Review, error)
}

type ReviewRepositoryImpl struct {
	db *DB
}

func NewReviewRepository(db *DB) *ReviewRepositoryImpl {
	return &ReviewRepositoryImpl{db: db}
}

// GetBorrowContext は貸出からコピー経由で書籍IDを解決します
func (r *ReviewRepositoryImpl) GetBorrowContext(ctx context.Context, borrowID int64) (*BorrowContext, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewRepository.GetBorrowContext")
	defer seg.Close(nil)

	query := `
		SELECT
			br.id AS borrow_id,
			br.user_id,
			br.copy_id,
			c.book_id
		FROM borrows br
		JOIN book_copies c ON c.id = br.copy_id
		WHERE br.id = $1`

	var bc BorrowContext
	if err := r.db.GetContext(ctx, &bc, query, borrowID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "borrow %d", borrowID)
	}
	return &bc, nil
}

func (r *ReviewRepositoryImpl) ExistsForBorrow(ctx context.Context, borrowID int64) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewRepository.ExistsForBorrow")
	defer seg.Close(nil)

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reviews WHERE borrow_id = $1)`, borrowID); err != nil {
		seg.Close(err)
		return false, fmt.Errorf("failed to check review for borrow %d: %w", borrowID, err)
	}
	return exists, nil
}

// Create はレビューを作成します
// 同じ貸出へのレビューが同時に作成された場合は一意制約違反を DuplicateReview として返します
func (r *ReviewRepositoryImpl) Create(ctx context.Context, review *model.Review) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO reviews (
			borrow_id, book_id, user_id, content, rating, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx,
		query,
		review.BorrowID,
		review.BookID,
		review.UserID,
		review.Content,
		review.Rating,
		review.CreatedAt,
	).Scan(&review.ID)
	if err != nil {
		seg.Close(err)
		if isUniqueViolation(err) {
			return apperror.Wrap(apperror.CodeDuplicateReview, err, "borrow %d has already been reviewed", review.BorrowID)
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// ListByBook は書籍のレビューを新しい順に取得します
func (r *ReviewRepositoryImpl) ListByBook(ctx context.Context, bookID int64) ([]model.Review, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewRepository.ListByBook")
	defer seg.Close(nil)

	query := `
		SELECT id, borrow_id, book_id, user_id, content, rating, created_at
		FROM reviews
		WHERE book_id = $1
		ORDER BY created_at DESC, id DESC`

	reviews := make([]model.Review, 0)
	if err := r.db.SelectContext(ctx, &reviews, query, bookID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query reviews for book %d: %w", bookID, err)
	}
	return reviews, nil
}
