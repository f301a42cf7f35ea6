package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"github.com/uma-arai/sbcntr-library/internal/testutil/memstore"
)

// MockReviewRepository は貸出の参照に失敗するレビューリポジトリです
// 呼び出し時のX-Rayサブセグメントを記録します
type MockReviewRepository struct {
	repository.ReviewRepository
	err error
	seg *xray.Segment
}

func (m *MockReviewRepository) GetBorrowContext(ctx context.Context, borrowID int64) (*repository.BorrowContext, error) {
	m.seg = xray.GetSegment(ctx)
	return nil, m.err
}

type reviewFixture struct {
	store    *memstore.Store
	svc      *Service
	member   int64
	other    int64
	bookID   int64
	borrowID int64
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	s := memstore.New()
	f := &reviewFixture{store: s}
	f.member = s.AddUser(model.User{Username: "member"})
	f.other = s.AddUser(model.User{Username: "other"})
	f.bookID = s.AddBook(model.Book{Title: "The Hobbit", PublishedDate: time.Date(1937, 9, 21, 0, 0, 0, 0, time.UTC)})
	copyID := s.AddCopy(model.BookCopy{BookID: f.bookID, Language: "English"})
	f.borrowID = s.AddBorrow(model.Borrow{
		UserID:     f.member,
		CopyID:     copyID,
		BorrowedAt: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		ReturnDate: time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC),
	})

	f.svc = NewService(s.Reviews())
	f.svc.now = func() time.Time { return time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestService_AddReview_Rating(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_AddReview_Rating")
	defer seg.Close(nil)

	tests := []struct {
		name    string
		rating  int
		wantErr error
	}{
		{name: "評価0は不正", rating: 0, wantErr: apperror.ErrInvalidRating},
		{name: "評価6は不正", rating: 6, wantErr: apperror.ErrInvalidRating},
		{name: "評価1は下限", rating: 1},
		{name: "評価5は上限", rating: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReviewFixture(t)

			got, err := f.svc.AddReview(ctx, f.member, f.borrowID, f.bookID, tt.rating, "  good  ")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, got.ID)
			assert.Equal(t, tt.rating, got.Rating)
			assert.Equal(t, "good", got.Content)
			assert.Equal(t, f.bookID, got.BookID)
		})
	}
}

func TestService_AddReview_Errors(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_AddReview_Errors")
	defer seg.Close(nil)

	t.Run("同じ貸出への2件目はDuplicateReview", func(t *testing.T) {
		f := newReviewFixture(t)
		_, err := f.svc.AddReview(ctx, f.member, f.borrowID, f.bookID, 4, "first")
		require.NoError(t, err)

		_, err = f.svc.AddReview(ctx, f.member, f.borrowID, f.bookID, 2, "second")
		assert.True(t, errors.Is(err, apperror.ErrDuplicateReview), "got %v", err)

		reviews, err := f.svc.ListReviews(ctx, f.bookID)
		require.NoError(t, err)
		assert.Len(t, reviews, 1)
	})

	t.Run("存在しない貸出はNotFound", func(t *testing.T) {
		f := newReviewFixture(t)
		_, err := f.svc.AddReview(ctx, f.member, 9999, f.bookID, 4, "")
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	})

	t.Run("他の利用者の貸出はForbidden", func(t *testing.T) {
		f := newReviewFixture(t)
		_, err := f.svc.AddReview(ctx, f.other, f.borrowID, f.bookID, 4, "")
		assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)
	})

	t.Run("評価の検証は貸出の確認より先", func(t *testing.T) {
		f := newReviewFixture(t)
		_, err := f.svc.AddReview(ctx, f.member, 9999, f.bookID, 0, "")
		assert.True(t, errors.Is(err, apperror.ErrInvalidRating), "got %v", err)
	})

	t.Run("書籍IDは貸出から導出する", func(t *testing.T) {
		f := newReviewFixture(t)
		got, err := f.svc.AddReview(ctx, f.member, f.borrowID, 4242, 3, "")
		require.NoError(t, err)
		assert.Equal(t, f.bookID, got.BookID)
	})
}

func TestService_AddReview_RepositoryError(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_AddReview_RepositoryError")
	defer seg.Close(nil)

	repo := &MockReviewRepository{err: errors.New("connection refused")}
	svc := NewService(repo)

	_, err := svc.AddReview(ctx, 1, 2, 3, 4, "")
	require.Error(t, err)
	assert.Empty(t, apperror.CodeOf(err))

	// コードの無いエラーはサブセグメントに記録される
	require.NotNil(t, repo.seg)
	assert.Equal(t, "ReviewService.AddReview", repo.seg.Name)
	assert.True(t, repo.seg.Fault)
}

func TestService_ListReviews(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_ListReviews")
	defer seg.Close(nil)

	f := newReviewFixture(t)
	copyID := f.store.AddCopy(model.BookCopy{BookID: f.bookID, Language: "German"})
	secondBorrow := f.store.AddBorrow(model.Borrow{UserID: f.other, CopyID: copyID, BorrowedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	older := f.store.AddReview(model.Review{BorrowID: f.borrowID, Rating: 5, CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	newer := f.store.AddReview(model.Review{BorrowID: secondBorrow, Rating: 2, CreatedAt: time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)})

	got, err := f.svc.ListReviews(ctx, f.bookID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.Equal(t, older, got[1].ID)

	empty, err := f.svc.ListReviews(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
