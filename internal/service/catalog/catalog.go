package catalog

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"github.com/uma-arai/sbcntr-library/internal/service/availability"
)

// Service は蔵書の検索とコピーの在庫表示を担当します。参照のみで更新は行いません
type Service struct {
	books        repository.BookRepository
	copies       repository.CopyRepository
	reservations repository.ReservationRepository
}

// NewService は新しい catalog.Service を作成します
func NewService(books repository.BookRepository, copies repository.CopyRepository, reservations repository.ReservationRepository) *Service {
	return &Service{
		books:        books,
		copies:       copies,
		reservations: reservations,
	}
}

// ListBooks は絞り込み条件に一致する書籍を返します。一致が無ければ空のスライスです
func (s *Service) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CatalogService.ListBooks")
	defer seg.Close(nil)

	if filter.MinRating != nil && !model.ValidRating(*filter.MinRating) {
		return nil, apperror.Wrap(apperror.CodeInvalidRating, apperror.ErrInvalidRating, "min rating %d is out of range", *filter.MinRating)
	}

	books, err := s.books.ListBooks(ctx, filter)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	if books == nil {
		books = []model.Book{}
	}
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CatalogService.GetBook")
	defer seg.Close(nil)

	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}
	return book, nil
}

// GetCopies は書籍のコピーをID順に返します。書籍が存在しなければ NotFound です
func (s *Service) GetCopies(ctx context.Context, bookID int64) ([]model.BookCopy, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CatalogService.GetCopies")
	defer seg.Close(nil)

	if err := s.books.EnsureBookExists(ctx, bookID); err != nil {
		if apperror.CodeOf(err) == "" {
			seg.Close(err)
		}
		return nil, err
	}

	copies, err := s.copies.ListByBookID(ctx, bookID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	return copies, nil
}

// GetCopyGroups はコピーに状態を付与し、言語ごとにまとめて返します
func (s *Service) GetCopyGroups(ctx context.Context, bookID int64) ([]model.LanguageGroup, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CatalogService.GetCopyGroups")
	defer seg.Close(nil)

	copies, err := s.GetCopies(ctx, bookID)
	if err != nil {
		return nil, err
	}

	reservations, err := s.reservations.ListActiveByBook(ctx, bookID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	borrows, err := s.copies.ListActiveBorrowsByBookID(ctx, bookID)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	return availability.GroupByLanguage(availability.Annotate(copies, reservations, borrows)), nil
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "CatalogService.ListCategories")
	defer seg.Close(nil)

	categories, err := s.books.ListCategories(ctx)
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	return categories, nil
}
