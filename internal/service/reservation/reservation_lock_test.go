package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

// 行ロックの取得順序を PostgreSQL 上の実装で確認するためのテスト
// sqlmock は期待した順序以外で発行された文をエラーにします

var (
	baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	sqlCopyColumns        = []string{"id", "book_id", "language", "floor", "section", "shelf", "row_num", "created_at"}
	sqlReservationColumns = []string{"id", "user_id", "copy_id", "reserve_date", "start_time", "end_time", "status", "created_at", "completed_at"}
	sqlBorrowColumns      = []string{"id", "user_id", "copy_id", "language", "borrowed_at", "return_date", "returned_at"}
)

const (
	lockCopySQL        = `FROM book_copies WHERE id = \$1 FOR UPDATE`
	lockUserSQL        = `SELECT id FROM users WHERE id = \$1 FOR UPDATE`
	getReservationSQL  = `FROM reservations WHERE id = \$1$`
	lockReservationSQL = `FROM reservations WHERE id = \$1 FOR UPDATE`
)

func newSQLService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &repository.DB{DB: sqlx.NewDb(mockDB, "postgres")}
	svc := NewService(repository.NewReservationRepository(db), DefaultMaxActiveReservations)
	svc.now = func() time.Time { return baseTime }
	return svc, mock
}

func copyRow(copyID int64) *sqlmock.Rows {
	return sqlmock.NewRows(sqlCopyColumns).AddRow(copyID, int64(1), "Japanese", 2, "A", 3, 4, baseTime)
}

func reservationRow(id, userID, copyID int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(sqlReservationColumns).
		AddRow(id, userID, copyID, baseTime, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour), status, baseTime, nil)
}

func TestService_Reserve_LockOrder(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_Reserve_LockOrder")
	defer seg.Close(nil)

	svc, mock := newSQLService(t)

	// コピー、ユーザーの順にロックしてから作成する
	mock.ExpectBegin()
	mock.ExpectQuery(lockCopySQL).WithArgs(int64(2)).WillReturnRows(copyRow(2))
	mock.ExpectQuery(`FROM reservations WHERE copy_id = \$1 AND status = \$2`).
		WithArgs(int64(2), "active").
		WillReturnRows(sqlmock.NewRows(sqlReservationColumns))
	mock.ExpectQuery(`FROM borrows WHERE copy_id = \$1 AND returned_at IS NULL`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(sqlBorrowColumns))
	mock.ExpectQuery(lockUserSQL).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations WHERE user_id = \$1 AND status = \$2`).
		WithArgs(int64(1), "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO reservations`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	r, err := svc.Reserve(ctx, 1, 2, baseTime, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Cancel_LockOrder(t *testing.T) {
	ctx, seg := xray.BeginSegment(context.Background(), "TestService_Cancel_LockOrder")
	defer seg.Close(nil)

	t.Run("コピーを予約より先にロックする", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 1, 2, "active"))
		mock.ExpectQuery(lockCopySQL).WithArgs(int64(2)).WillReturnRows(copyRow(2))
		mock.ExpectQuery(lockReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 1, 2, "active"))
		mock.ExpectExec(`UPDATE reservations`).
			WithArgs("cancelled", baseTime, int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.Cancel(ctx, 1, 5))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ロック待ちの間に貸出された予約はNotFound", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 1, 2, "active"))
		mock.ExpectQuery(lockCopySQL).WithArgs(int64(2)).WillReturnRows(copyRow(2))
		mock.ExpectQuery(lockReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 1, 2, "borrowed"))
		mock.ExpectRollback()

		err := svc.Cancel(ctx, 1, 5)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("他の利用者の予約はForbidden", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 9, 2, "active"))
		mock.ExpectQuery(lockCopySQL).WithArgs(int64(2)).WillReturnRows(copyRow(2))
		mock.ExpectQuery(lockReservationSQL).WithArgs(int64(5)).WillReturnRows(reservationRow(5, 9, 2, "active"))
		mock.ExpectRollback()

		err := svc.Cancel(ctx, 1, 5)
		assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("存在しない予約はロックを取らない", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getReservationSQL).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(sqlReservationColumns))
		mock.ExpectRollback()

		err := svc.Cancel(ctx, 1, 5)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
