package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/service/borrow"
	"github.com/uma-arai/sbcntr-library/internal/service/catalog"
	"github.com/uma-arai/sbcntr-library/internal/service/reservation"
	"github.com/uma-arai/sbcntr-library/internal/service/review"
	"github.com/uma-arai/sbcntr-library/internal/service/user"
	"github.com/uma-arai/sbcntr-library/internal/testutil/memstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type testServer struct {
	t      *testing.T
	e      *echo.Echo
	store  *memstore.Store
	users  *user.Service
	bookID int64
	copies []int64
	member string
	other  string
	staff  string
	ids    map[string]int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerIn(t, time.UTC)
}

// newTestServerIn は図書館のタイムゾーンを loc にしたテストサーバーを作成します
func newTestServerIn(t *testing.T, loc *time.Location) *testServer {
	t.Helper()

	s := memstore.New()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "handler-test-secret"
	cfg.Library.Location = loc
	cfg.Library.MaxActiveReservations = reservation.DefaultMaxActiveReservations

	users := user.NewService(s.Users(), cfg.Auth.JWTSecret, time.Hour)
	svc := Services{
		Catalog:       catalog.NewService(s.Books(), s.Copies(), s.Reservations()),
		Reservation:   reservation.NewService(s.Reservations(), cfg.Library.MaxActiveReservations),
		Review:        review.NewService(s.Reviews()),
		Borrow:        borrow.NewService(s.Borrows()),
		User:          users,
		Notifications: s.Notifications(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ts := &testServer{t: t, e: NewServer(cfg, svc, logger), store: s, users: users, ids: map[string]int64{}}

	ts.bookID = s.AddBook(model.Book{Title: "Kokoro", Author: "Natsume Soseki", PublishedDate: time.Date(1914, 4, 20, 0, 0, 0, 0, time.UTC)})
	for _, lang := range []string{"Japanese", "English", "Japanese", "French"} {
		ts.copies = append(ts.copies, s.AddCopy(model.BookCopy{BookID: ts.bookID, Language: lang}))
	}

	ts.member = ts.token(model.User{Username: "member"})
	ts.other = ts.token(model.User{Username: "other"})
	ts.staff = ts.token(model.User{Username: "staff", Role: model.RoleReceptionist})
	return ts
}

// token は利用者を登録してアクセストークンを発行します
func (ts *testServer) token(u model.User) string {
	u.ID = ts.store.AddUser(u)
	if u.Role == "" {
		u.Role = model.RoleMember
	}
	tok, err := ts.users.IssueToken(&u)
	require.NoError(ts.t, err)
	ts.ids[tok] = u.ID
	return tok
}

func (ts *testServer) userID(token string) int64 {
	return ts.ids[token]
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	ctx, seg := xray.BeginSegment(context.Background(), "handler_test")
	defer seg.Close(nil)

	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(ctx)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) apperror.Code {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Code
}

func reserveBody(copyID int64, start, end string) string {
	return `{"copy_id":` + strconv.FormatInt(copyID, 10) + `,"date":"2030-01-10","start_time":"` + start + `","end_time":"` + end + `"}`
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Auth(t *testing.T) {
	ts := newTestServer(t)

	body := `{"username":"hanako","password":"s3cret-pass","email":"hanako@example.com"}`
	rec := ts.do(http.MethodPost, "/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = ts.do(http.MethodPost, "/v1/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.CodeConflict, errorCode(t, rec))

	rec = ts.do(http.MethodPost, "/v1/auth/login", "", `{"username":"hanako","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login LoginResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)

	rec = ts.do(http.MethodGet, "/v1/users/me", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, login.UserID, me.ID)
	assert.Equal(t, "hanako", me.Username)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
		code   apperror.Code
	}{
		{name: "パスワード不一致", method: http.MethodPost, path: "/v1/auth/login", body: `{"username":"hanako","password":"wrong-pass"}`, status: http.StatusUnauthorized, code: apperror.CodeUnauthorized},
		{name: "入力不足", method: http.MethodPost, path: "/v1/auth/register", body: `{"username":"ab"}`, status: http.StatusBadRequest, code: apperror.CodeInvalidArgument},
		{name: "不正なJSON", method: http.MethodPost, path: "/v1/auth/login", body: `{`, status: http.StatusBadRequest, code: apperror.CodeInvalidArgument},
		{name: "トークンなし", method: http.MethodGet, path: "/v1/users/me", status: http.StatusUnauthorized, code: apperror.CodeUnauthorized},
		{name: "不正なトークン", method: http.MethodGet, path: "/v1/users/me", token: "not-a-token", status: http.StatusUnauthorized, code: apperror.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestServer_Catalog(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/books", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var books []model.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Nil(t, books[0].AverageRating)

	rec = ts.do(http.MethodGet, "/v1/books/"+strconv.FormatInt(ts.bookID, 10)+"/copies", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var groups []model.LanguageGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 3)
	assert.Equal(t, "Japanese", groups[0].Language)
	assert.True(t, groups[0].Expanded)
	assert.Len(t, groups[0].Copies, 2)
	assert.False(t, groups[1].Expanded)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   apperror.Code
	}{
		{name: "存在しない書籍", method: http.MethodGet, path: "/v1/books/9999", status: http.StatusNotFound, code: apperror.CodeNotFound},
		{name: "存在しない書籍のコピー", method: http.MethodGet, path: "/v1/books/9999/copies", status: http.StatusNotFound, code: apperror.CodeNotFound},
		{name: "数値でないID", method: http.MethodGet, path: "/v1/books/abc", status: http.StatusBadRequest, code: apperror.CodeInvalidArgument},
		{name: "評価の下限が範囲外", method: http.MethodPost, path: "/v1/books/filter", body: `{"min_rating":6}`, status: http.StatusBadRequest, code: apperror.CodeInvalidRating},
		{name: "日付の形式が不正", method: http.MethodPost, path: "/v1/books/filter", body: `{"published_after":"2020/01/01"}`, status: http.StatusBadRequest, code: apperror.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, ts.member, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec = ts.do(http.MethodPost, "/v1/books/filter", ts.member, `{"published_after":"1900-01-01","published_before":"1920-12-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	assert.Len(t, books, 1)

	rec = ts.do(http.MethodPost, "/v1/books/filter", ts.member, `{"published_after":"2000-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_LibraryTimezone(t *testing.T) {
	// UTC+5:30 では現地0時がUTCの前日になる
	ts := newTestServerIn(t, time.FixedZone("IST", 5*60*60+30*60))

	t.Run("出版日の範囲は暦日で比較する", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/v1/books/filter", ts.member, `{"published_after":"1914-04-20","published_before":"1914-04-20"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var books []model.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
		require.Len(t, books, 1)
		assert.Equal(t, ts.bookID, books[0].ID)

		rec = ts.do(http.MethodPost, "/v1/books/filter", ts.member, `{"published_after":"1914-04-21"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("予約日は暦日、開始と終了は現地時刻", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/v1/reservations", ts.member, reserveBody(ts.copies[0], "10:00", "11:00"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var r model.Reservation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.Equal(t, "2030-01-10", r.ReserveDate.UTC().Format("2006-01-02"))
		assert.True(t, r.StartTime.Equal(time.Date(2030, 1, 10, 4, 30, 0, 0, time.UTC)), "start %v", r.StartTime)
		assert.True(t, r.EndTime.Equal(time.Date(2030, 1, 10, 5, 30, 0, 0, time.UTC)), "end %v", r.EndTime)
	})
}

func TestServer_Reservations(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/reservations", ts.member, reserveBody(ts.copies[0], "10:00", "11:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, model.ReservationStatusActive, created.Status)
	assert.True(t, created.StartTime.Equal(time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)))

	tests := []struct {
		name  string
		token string
		body  string
		code  apperror.Code
	}{
		{name: "予約済みのコピー", token: ts.other, body: reserveBody(ts.copies[0], "10:00", "11:00"), code: apperror.CodeCopyUnavailable},
		{name: "終了が開始より前", token: ts.other, body: reserveBody(ts.copies[1], "11:00", "10:00"), code: apperror.CodeInvalidRange},
		{name: "終了と開始が同じ", token: ts.other, body: reserveBody(ts.copies[1], "10:00", "10:00"), code: apperror.CodeInvalidRange},
		{name: "時刻の形式が不正", token: ts.other, body: reserveBody(ts.copies[1], "25:00", "26:00"), code: apperror.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/v1/reservations", tt.token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec = ts.do(http.MethodPost, "/v1/reservations", ts.member, reserveBody(9999, "10:00", "11:00"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 上限に達した後の予約は RESERVATION_LIMIT_EXCEEDED
	for _, copyID := range ts.copies[1:3] {
		rec = ts.do(http.MethodPost, "/v1/reservations", ts.member, reserveBody(copyID, "10:00", "11:00"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = ts.do(http.MethodPost, "/v1/reservations", ts.member, reserveBody(ts.copies[3], "10:00", "11:00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeReservationLimitExceeded, errorCode(t, rec))

	rec = ts.do(http.MethodGet, "/v1/reservations/me", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []model.ReservationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 3)

	path := "/v1/reservations/" + strconv.FormatInt(created.ID, 10)
	rec = ts.do(http.MethodDelete, path, ts.other, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodDelete, path, ts.member, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, path, ts.member, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 取り消し後は他の利用者が予約できる
	rec = ts.do(http.MethodPost, "/v1/reservations", ts.other, reserveBody(ts.copies[0], "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_BorrowsAndReviews(t *testing.T) {
	ts := newTestServer(t)

	checkout := `{"user_id":` + strconv.FormatInt(ts.userID(ts.member), 10) + `,"copy_id":` + strconv.FormatInt(ts.copies[0], 10) + `,"return_date":"2099-01-31"}`

	rec := ts.do(http.MethodPost, "/v1/borrows", ts.member, checkout)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/borrows", ts.staff, checkout)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b model.Borrow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "Japanese", b.Language)

	rec = ts.do(http.MethodPost, "/v1/borrows", ts.staff, checkout)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeCopyUnavailable, errorCode(t, rec))

	// 貸出中のコピーは予約できない
	rec = ts.do(http.MethodPost, "/v1/reservations", ts.other, reserveBody(ts.copies[0], "10:00", "11:00"))
	assert.Equal(t, apperror.CodeCopyUnavailable, errorCode(t, rec))

	rec = ts.do(http.MethodGet, "/v1/borrows/me", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var borrows []model.BorrowDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &borrows))
	require.Len(t, borrows, 1)
	assert.False(t, borrows[0].Reviewed)

	reviewBody := func(rating int) string {
		return `{"borrow_id":` + strconv.FormatInt(b.ID, 10) + `,"book_id":` + strconv.FormatInt(ts.bookID, 10) + `,"rating":` + strconv.Itoa(rating) + `,"text":"great"}`
	}

	rec = ts.do(http.MethodPost, "/v1/reviews", ts.member, reviewBody(6))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeInvalidRating, errorCode(t, rec))

	rec = ts.do(http.MethodPost, "/v1/reviews", ts.other, reviewBody(4))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/reviews", ts.member, reviewBody(4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/v1/reviews", ts.member, reviewBody(5))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeDuplicateReview, errorCode(t, rec))

	rec = ts.do(http.MethodGet, "/v1/books/"+strconv.FormatInt(ts.bookID, 10), ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var book model.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.NotNil(t, book.AverageRating)
	assert.InDelta(t, 4.0, *book.AverageRating, 0.001)
	assert.Equal(t, 1, book.ReviewCount)

	rec = ts.do(http.MethodGet, "/v1/books/"+strconv.FormatInt(ts.bookID, 10)+"/reviews", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reviews []model.Review
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	assert.Len(t, reviews, 1)

	returnPath := "/v1/borrows/" + strconv.FormatInt(b.ID, 10) + "/return"
	rec = ts.do(http.MethodPost, returnPath, ts.staff, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, returnPath, ts.staff, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/reservations", ts.other, reserveBody(ts.copies[0], "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_Notifications(t *testing.T) {
	ts := newTestServer(t)

	uid := ts.userID(ts.member)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []model.NotificationRecord{
		{UserID: uid, Title: "予約の期限が切れました", Message: "Kokoro", Type: model.NotificationTypeReservationExpired, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, ts.store.Notifications().CreateNotifications(context.Background(), records))

	rec := ts.do(http.MethodGet, "/v1/notifications/me", ts.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.NotificationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.False(t, got[0].IsRead)

	path := "/v1/notifications/" + strconv.FormatInt(got[0].ID, 10) + "/read"
	rec = ts.do(http.MethodPost, path, ts.other, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, path, ts.member, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.store.NotificationRecords()[0].IsRead)
}
