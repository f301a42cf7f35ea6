package review

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

// Service は貸出に対するレビューの登録と一覧を担当します
type Service struct {
	reviews repository.ReviewRepository
	now     func() time.Time
}

func NewService(reviews repository.ReviewRepository) *Service {
	return &Service{
		reviews: reviews,
		now:     time.Now,
	}
}

// AddReview は貸出に対するレビューを登録します
// 書籍IDは貸出のコピーから導出し、引数の bookID と異なる場合は導出した値を使います
func (s *Service) AddReview(ctx context.Context, userID, borrowID, bookID int64, rating int, text string) (*model.Review, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewService.AddReview")
	defer seg.Close(nil)

	if !model.ValidRating(rating) {
		return nil, apperror.Wrap(apperror.CodeInvalidRating, apperror.ErrInvalidRating, "rating %d is out of range", rating)
	}

	borrow, err := s.reviews.GetBorrowContext(ctx, borrowID)
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}
	if borrow.UserID != userID {
		return nil, apperror.New(apperror.CodeForbidden, "borrow %d belongs to another user", borrowID)
	}

	exists, err := s.reviews.ExistsForBorrow(ctx, borrowID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if exists {
		return nil, apperror.Wrap(apperror.CodeDuplicateReview, apperror.ErrDuplicateReview, "borrow %d has already been reviewed", borrowID)
	}

	if bookID != 0 && bookID != borrow.BookID {
		log.Printf("Review for borrow %d: requested book %d differs from borrowed book %d, using %d",
			borrowID, bookID, borrow.BookID, borrow.BookID)
	}

	r := &model.Review{
		BorrowID:  borrowID,
		BookID:    borrow.BookID,
		UserID:    userID,
		Content:   strings.TrimSpace(text),
		Rating:    rating,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}
	return r, nil
}

// ListReviews は書籍のレビューを新しい順に返します。存在しない書籍は空の一覧です
func (s *Service) ListReviews(ctx context.Context, bookID int64) ([]model.Review, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReviewService.ListReviews")
	defer seg.Close(nil)

	reviews, err := s.reviews.ListByBook(ctx, bookID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	return reviews, nil
}
