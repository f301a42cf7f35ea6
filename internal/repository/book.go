package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

const (
	dialectPostgres = "postgres"

	// 書籍に紐づくカテゴリ名をカンマ区切りで返す相関サブクエリ
	categoryNamesSQL = `COALESCE((
		SELECT string_agg(c.name, ', ' ORDER BY c.name)
		FROM book_categories bc
		JOIN categories c ON c.id = bc.category_id
		WHERE bc.book_id = "b"."id"
	), '')`
)

// BookRepository は蔵書の参照を担当するインターフェースです
type BookRepository interface {
	ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error)
	GetByID(ctx context.Context, bookID int64) (*model.Book, error)
	EnsureBookExists(ctx context.Context, bookID int64) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetTitlesByCopyIDs(ctx context.Context, copyIDs []int64) (map[int64]string, error)
}

type BookRepositoryImpl struct {
	db *DB
}

func NewBookRepository(db *DB) *BookRepositoryImpl {
	return &BookRepositoryImpl{db: db}
}

// bookSelect は評価の集計を LEFT JOIN した書籍の SELECT 文を組み立てます
// レビューの無い書籍は average_rating が NULL、review_count が 0 になります
func bookSelect() *goqu.SelectDataset {
	builder := goqu.Dialect(dialectPostgres)

	ratings := builder.
		From(goqu.T("reviews")).
		Select(
			goqu.C("book_id"),
			goqu.L(`AVG("rating")::float8`).As("average_rating"),
			goqu.COUNT(goqu.Star()).As("review_count"),
		).
		GroupBy(goqu.C("book_id"))

	return builder.
		From(goqu.T("books").As("b")).
		LeftJoin(ratings.As("r"), goqu.On(goqu.I("r.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("b.id"),
			goqu.I("b.title"),
			goqu.I("b.author"),
			goqu.I("b.description"),
			goqu.L(categoryNamesSQL).As("category"),
			goqu.I("b.isbn"),
			goqu.I("b.published_date"),
			goqu.I("b.cover_image"),
			goqu.I("r.average_rating"),
			goqu.L(`COALESCE("r"."review_count", 0)`).As("review_count"),
		).
		Prepared(true)
}

// buildListBooksQuery は絞り込み条件から SQL とバインド引数を生成します
func buildListBooksQuery(filter model.BookFilter) (string, []any, error) {
	conditions := make([]exp.Expression, 0, 4)

	if len(filter.Categories) > 0 {
		inCategory := goqu.Dialect(dialectPostgres).
			From(goqu.T("book_categories").As("bc")).
			Select(goqu.I("bc.book_id")).
			Where(goqu.I("bc.category_id").In(filter.Categories))
		conditions = append(conditions, goqu.I("b.id").In(inCategory))
	}
	if filter.MinRating != nil {
		// NULL との比較は偽になるためレビューの無い書籍は除外されます
		conditions = append(conditions, goqu.I("r.average_rating").Gte(*filter.MinRating))
	}
	if filter.PublishedAfter != nil {
		conditions = append(conditions, goqu.I("b.published_date").Gte(filter.PublishedAfter.Format(utils.DateLayout)))
	}
	if filter.PublishedBefore != nil {
		conditions = append(conditions, goqu.I("b.published_date").Lte(filter.PublishedBefore.Format(utils.DateLayout)))
	}

	ds := bookSelect()
	if len(conditions) > 0 {
		ds = ds.Where(goqu.And(conditions...))
	}

	return ds.Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc()).ToSQL()
}

// ListBooks は条件に一致する書籍を評価の集計付きで取得します
func (r *BookRepositoryImpl) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BookRepository.ListBooks")
	defer seg.Close(nil)

	query, args, err := buildListBooksQuery(filter)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}

	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	return books, nil
}

// GetByID は書籍を1件取得します
func (r *BookRepositoryImpl) GetByID(ctx context.Context, bookID int64) (*model.Book, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BookRepository.GetByID")
	defer seg.Close(nil)

	query, args, err := bookSelect().Where(goqu.I("b.id").Eq(bookID)).ToSQL()
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "book %d", bookID)
	}
	return &book, nil
}

// ListCategories はカテゴリを名前順に取得します
func (r *BookRepositoryImpl) ListCategories(ctx context.Context) ([]model.Category, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BookRepository.ListCategories")
	defer seg.Close(nil)

	categories := make([]model.Category, 0)
	if err := r.db.SelectContext(ctx, &categories, `SELECT id, name FROM categories ORDER BY name, id`); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	return categories, nil
}

// GetTitlesByCopyIDs はコピーIDから書名への対応を1クエリで取得します
func (r *BookRepositoryImpl) GetTitlesByCopyIDs(ctx context.Context, copyIDs []int64) (map[int64]string, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "BookRepository.GetTitlesByCopyIDs")
	defer seg.Close(nil)

	titles := make(map[int64]string, len(copyIDs))
	if len(copyIDs) == 0 {
		return titles, nil
	}

	query, args, err := sqlx.In(`
		SELECT c.id, b.title
		FROM book_copies c
		JOIN books b ON b.id = c.book_id
		WHERE c.id IN (?)`, copyIDs)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to build title query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query book titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			copyID int64
			title  string
		)
		if err := rows.Scan(&copyID, &title); err != nil {
			seg.Close(err)
			return nil, fmt.Errorf("failed to scan book title: %w", err)
		}
		titles[copyID] = title
	}
	if err := rows.Err(); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("error iterating book titles: %w", err)
	}

	return titles, nil
}

// EnsureBookExists は書籍の存在を確認し、無ければ NotFound を返します
func (r *BookRepositoryImpl) EnsureBookExists(ctx context.Context, bookID int64) error {
	ctx, seg := xray.BeginSubsegment(ctx, "BookRepository.EnsureBookExists")
	defer seg.Close(nil)

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to check book %d: %w", bookID, err)
	}
	if !exists {
		return apperror.New(apperror.CodeNotFound, "book %d not found", bookID)
	}
	return nil
}
