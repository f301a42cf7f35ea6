package borrow

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
	"github.com/uma-arai/sbcntr-library/internal/testutil/memstore"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type borrowFixture struct {
	store  *memstore.Store
	svc    *Service
	member int64
	other  int64
	copyID int64
}

func newBorrowFixture(t *testing.T) *borrowFixture {
	t.Helper()

	s := memstore.New()
	f := &borrowFixture{store: s}
	f.member = s.AddUser(model.User{Username: "member"})
	f.other = s.AddUser(model.User{Username: "other"})
	bookID := s.AddBook(model.Book{Title: "Emma", PublishedDate: time.Date(1815, 12, 23, 0, 0, 0, 0, time.UTC)})
	f.copyID = s.AddCopy(model.BookCopy{BookID: bookID, Language: "French"})

	f.svc = NewService(s.Borrows())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestService_Checkout(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_Checkout")
	defer seg.Close(nil)

	returnDate := testNow.AddDate(0, 0, 14)

	t.Run("利用可能なコピーを貸し出す", func(t *testing.T) {
		f := newBorrowFixture(t)
		got, err := f.svc.Checkout(ctx, f.member, f.copyID, returnDate)
		require.NoError(t, err)
		assert.NotZero(t, got.ID)
		assert.Equal(t, "French", got.Language)
		assert.True(t, got.IsActive())
		assert.True(t, got.BorrowedAt.Equal(testNow))
	})

	t.Run("本人の予約は borrowed として完了する", func(t *testing.T) {
		f := newBorrowFixture(t)
		reservationID := f.store.AddReservation(model.Reservation{UserID: f.member, CopyID: f.copyID, StartTime: testNow, EndTime: testNow.Add(time.Hour)})

		_, err := f.svc.Checkout(ctx, f.member, f.copyID, returnDate)
		require.NoError(t, err)

		r, _ := f.store.Reservation(reservationID)
		assert.Equal(t, model.ReservationStatusBorrowed, r.Status)
		assert.Equal(t, 0, f.store.ActiveReservationCount(f.copyID))
	})

	t.Run("他の利用者が予約中ならCopyUnavailable", func(t *testing.T) {
		f := newBorrowFixture(t)
		reservationID := f.store.AddReservation(model.Reservation{UserID: f.other, CopyID: f.copyID, StartTime: testNow, EndTime: testNow.Add(time.Hour)})

		_, err := f.svc.Checkout(ctx, f.member, f.copyID, returnDate)
		assert.True(t, errors.Is(err, apperror.ErrCopyUnavailable), "got %v", err)

		r, _ := f.store.Reservation(reservationID)
		assert.Equal(t, model.ReservationStatusActive, r.Status)
	})

	t.Run("貸出中ならCopyUnavailable", func(t *testing.T) {
		f := newBorrowFixture(t)
		_, err := f.svc.Checkout(ctx, f.other, f.copyID, returnDate)
		require.NoError(t, err)

		_, err = f.svc.Checkout(ctx, f.member, f.copyID, returnDate)
		assert.True(t, errors.Is(err, apperror.ErrCopyUnavailable), "got %v", err)
	})

	t.Run("返却予定日が過去ならInvalidRange", func(t *testing.T) {
		f := newBorrowFixture(t)
		_, err := f.svc.Checkout(ctx, f.member, f.copyID, testNow.Add(-time.Hour))
		assert.True(t, errors.Is(err, apperror.ErrInvalidRange), "got %v", err)
		assert.Equal(t, 0, f.store.TxCount)
	})

	t.Run("存在しないコピーや利用者はNotFound", func(t *testing.T) {
		f := newBorrowFixture(t)
		_, err := f.svc.Checkout(ctx, f.member, 9999, returnDate)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

		_, err = f.svc.Checkout(ctx, 9999, f.copyID, returnDate)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	})
}

func TestService_Return(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_Return")
	defer seg.Close(nil)

	f := newBorrowFixture(t)
	b, err := f.svc.Checkout(ctx, f.member, f.copyID, testNow.AddDate(0, 0, 7))
	require.NoError(t, err)

	require.NoError(t, f.svc.Return(ctx, b.ID))
	stored, ok := f.store.Borrow(b.ID)
	require.True(t, ok)
	assert.False(t, stored.IsActive())

	err = f.svc.Return(ctx, b.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	err = f.svc.Return(ctx, 9999)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	// 返却後は再び貸し出せる
	_, err = f.svc.Checkout(ctx, f.other, f.copyID, testNow.AddDate(0, 0, 7))
	assert.NoError(t, err)
}

func TestService_ListByUser(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_ListByUser")
	defer seg.Close(nil)

	f := newBorrowFixture(t)
	_, err := f.svc.Checkout(ctx, f.member, f.copyID, testNow.AddDate(0, 0, 7))
	require.NoError(t, err)

	list, err := f.svc.ListByUser(ctx, f.member)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Emma", list[0].BookTitle)
	assert.False(t, list[0].Reviewed)

	empty, err := f.svc.ListByUser(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
