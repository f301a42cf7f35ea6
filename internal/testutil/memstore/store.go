// Package memstore はテスト用のインメモリ実装です
// リポジトリのインターフェースを満たし、RunInTx はストア全体で直列化されます
// トランザクション内の更新は fn がエラーを返すと巻き戻されます
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

// Store はインメモリのデータストアです
type Store struct {
	// txMu はトランザクション全体を、mu は個々の読み書きを保護します
	txMu sync.Mutex
	mu   sync.Mutex

	nextID int64

	users          map[int64]model.User
	categories     map[int64]model.Category
	books          map[int64]model.Book
	bookCategories map[int64][]int64
	copies         map[int64]model.BookCopy
	reservations   map[int64]model.Reservation
	borrows        map[int64]model.Borrow
	reviews        map[int64]model.Review
	notifications  map[int64]model.NotificationRecord

	// TxCount は RunInTx が呼ばれた回数です
	TxCount int
}

func New() *Store {
	return &Store{
		users:          make(map[int64]model.User),
		categories:     make(map[int64]model.Category),
		books:          make(map[int64]model.Book),
		bookCategories: make(map[int64][]int64),
		copies:         make(map[int64]model.BookCopy),
		reservations:   make(map[int64]model.Reservation),
		borrows:        make(map[int64]model.Borrow),
		reviews:        make(map[int64]model.Review),
		notifications:  make(map[int64]model.NotificationRecord),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser は利用者を登録してIDを返します
func (s *Store) AddUser(u model.User) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	if u.Role == "" {
		u.Role = model.RoleMember
	}
	s.users[u.ID] = u
	return u.ID
}

func (s *Store) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.categories[id] = model.Category{ID: id, Name: name}
	return id
}

// AddBook は書籍を登録してIDを返します。集計値は保存せずレビューから導出します
func (s *Store) AddBook(b model.Book, categoryIDs ...int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	b.AverageRating = nil
	b.ReviewCount = 0
	s.books[b.ID] = b
	s.bookCategories[b.ID] = append([]int64(nil), categoryIDs...)
	return b.ID
}

func (s *Store) AddCopy(c model.BookCopy) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.copies[c.ID] = c
	return c.ID
}

// AddBorrow は貸出を直接登録します。Language が空ならコピーの言語を使います
func (s *Store) AddBorrow(b model.Borrow) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	if b.Language == "" {
		b.Language = s.copies[b.CopyID].Language
	}
	s.borrows[b.ID] = b
	return b.ID
}

// AddReservation は予約を直接登録します。Status が空なら active です
func (s *Store) AddReservation(r model.Reservation) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if r.Status == "" {
		r.Status = model.ReservationStatusActive
	}
	s.reservations[r.ID] = r
	return r.ID
}

// AddReview はレビューを直接登録します。BookID は貸出のコピーから導出します
func (s *Store) AddReview(r model.Review) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if b, ok := s.borrows[r.BorrowID]; ok {
		r.BookID = s.copies[b.CopyID].BookID
		r.UserID = b.UserID
	}
	s.reviews[r.ID] = r
	return r.ID
}

func (s *Store) Reservation(id int64) (model.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	return r, ok
}

func (s *Store) Borrow(id int64) (model.Borrow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.borrows[id]
	return b, ok
}

// ActiveReservationCount はコピーのアクティブな予約数を返します
func (s *Store) ActiveReservationCount(copyID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reservations {
		if r.CopyID == copyID && r.IsActive() {
			n++
		}
	}
	return n
}

func (s *Store) NotificationRecords() []model.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NotificationRecord, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInTx は fn を他のトランザクションと排他に実行します
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.TxCount++
	s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Repository のビュー
// 同名のメソッドを持つインターフェースが複数あるため、用途ごとに型を分けています

func (s *Store) Books() repository.BookRepository               { return bookRepo{s} }
func (s *Store) Copies() repository.CopyRepository              { return copyRepo{s} }
func (s *Store) Reservations() repository.ReservationRepository { return reservationRepo{s} }
func (s *Store) Borrows() repository.BorrowRepository           { return borrowRepo{s} }
func (s *Store) Reviews() repository.ReviewRepository           { return reviewRepo{s} }
func (s *Store) Users() repository.UserRepository               { return userRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository {
	return notificationRepo{s}
}

func notFound(format string, args ...any) error {
	return apperror.New(apperror.CodeNotFound, format, args...)
}

// bookWithRating は書籍にレビューの集計値を付与します（mu を保持して呼び出すこと）
func (s *Store) bookWithRating(b model.Book) model.Book {
	sum, n := 0, 0
	for _, r := range s.reviews {
		if r.BookID == b.ID {
			sum += r.Rating
			n++
		}
	}
	b.ReviewCount = n
	b.AverageRating = nil
	if n > 0 {
		avg := float64(sum) / float64(n)
		b.AverageRating = &avg
	}

	names := make([]string, 0)
	for _, cid := range s.bookCategories[b.ID] {
		names = append(names, s.categories[cid].Name)
	}
	sort.Strings(names)
	b.Category = strings.Join(names, ", ")
	return b
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
