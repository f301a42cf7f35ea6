package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
)

type bookRepo struct{ s *Store }

// ListBooks は SQL 版と同じ条件で絞り込み、書名・ID順に返します
func (r bookRepo) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]model.Book, 0)
	for _, b := range r.s.books {
		b = r.s.bookWithRating(b)

		if len(filter.Categories) > 0 && !containsAny(r.s.bookCategories[b.ID], filter.Categories) {
			continue
		}
		if filter.MinRating != nil && (b.AverageRating == nil || *b.AverageRating < float64(*filter.MinRating)) {
			continue
		}
		published := dateOnly(b.PublishedDate)
		if filter.PublishedAfter != nil && published.Before(dateOnly(*filter.PublishedAfter)) {
			continue
		}
		if filter.PublishedBefore != nil && published.After(dateOnly(*filter.PublishedBefore)) {
			continue
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsAny(have, want []int64) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func (r bookRepo) GetByID(ctx context.Context, bookID int64) (*model.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[bookID]
	if !ok {
		return nil, notFound("book %d not found", bookID)
	}
	b = r.s.bookWithRating(b)
	return &b, nil
}

func (r bookRepo) EnsureBookExists(ctx context.Context, bookID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.books[bookID]; !ok {
		return notFound("book %d not found", bookID)
	}
	return nil
}

func (r bookRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r bookRepo) GetTitlesByCopyIDs(ctx context.Context, copyIDs []int64) (map[int64]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	titles := make(map[int64]string, len(copyIDs))
	for _, id := range copyIDs {
		if c, ok := r.s.copies[id]; ok {
			titles[id] = r.s.books[c.BookID].Title
		}
	}
	return titles, nil
}

type copyRepo struct{ s *Store }

func (r copyRepo) ListByBookID(ctx context.Context, bookID int64) ([]model.BookCopy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.BookCopy, 0)
	for _, c := range r.s.copies {
		if c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r copyRepo) ListActiveBorrowsByBookID(ctx context.Context, bookID int64) ([]model.Borrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Borrow, 0)
	for _, b := range r.s.borrows {
		if r.s.copies[b.CopyID].BookID == bookID && b.IsActive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type reservationRepo struct{ s *Store }

func (r reservationRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return r.s.RunInTx(ctx, fn)
}

func (r reservationRepo) ListActiveByUser(ctx context.Context, userID int64) ([]model.ReservationDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.ReservationDetail, 0)
	for _, res := range r.s.reservations {
		if res.UserID != userID || !res.IsActive() {
			continue
		}
		c := r.s.copies[res.CopyID]
		out = append(out, model.ReservationDetail{
			Reservation: res,
			BookID:      c.BookID,
			BookTitle:   r.s.books[c.BookID].Title,
			Language:    c.Language,
			Location:    c.Location,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r reservationRepo) ListActiveByBook(ctx context.Context, bookID int64) ([]model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, res := range r.s.reservations {
		if r.s.copies[res.CopyID].BookID == bookID && res.IsActive() {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reservationRepo) GetExpired(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, res := range r.s.reservations {
		if res.IsActive() && res.EndTime.Before(now) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

type borrowRepo struct{ s *Store }

func (r borrowRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return r.s.RunInTx(ctx, fn)
}

func (r borrowRepo) GetByID(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.borrows[borrowID]
	if !ok {
		return nil, notFound("borrow %d not found", borrowID)
	}
	return &b, nil
}

func (r borrowRepo) ListByUser(ctx context.Context, userID int64) ([]model.BorrowDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.BorrowDetail, 0)
	for _, b := range r.s.borrows {
		if b.UserID != userID {
			continue
		}
		c := r.s.copies[b.CopyID]
		reviewed := false
		for _, rv := range r.s.reviews {
			if rv.BorrowID == b.ID {
				reviewed = true
				break
			}
		}
		out = append(out, model.BorrowDetail{
			Borrow:    b,
			BookID:    c.BookID,
			BookTitle: r.s.books[c.BookID].Title,
			Location:  c.Location,
			Reviewed:  reviewed,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BorrowedAt.Equal(out[j].BorrowedAt) {
			return out[i].BorrowedAt.After(out[j].BorrowedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type reviewRepo struct{ s *Store }

func (r reviewRepo) GetBorrowContext(ctx context.Context, borrowID int64) (*repository.BorrowContext, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.borrows[borrowID]
	if !ok {
		return nil, notFound("borrow %d not found", borrowID)
	}
	return &repository.BorrowContext{
		BorrowID: b.ID,
		UserID:   b.UserID,
		CopyID:   b.CopyID,
		BookID:   r.s.copies[b.CopyID].BookID,
	}, nil
}

func (r reviewRepo) ExistsForBorrow(ctx context.Context, borrowID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.reviews {
		if rv.BorrowID == borrowID {
			return true, nil
		}
	}
	return false, nil
}

// Create は reviews(borrow_id) の一意制約を模倣します
func (r reviewRepo) Create(ctx context.Context, review *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.reviews {
		if rv.BorrowID == review.BorrowID {
			return apperror.New(apperror.CodeDuplicateReview, "borrow %d has already been reviewed", review.BorrowID)
		}
	}
	review.ID = r.s.id()
	r.s.reviews[review.ID] = *review
	return nil
}

func (r reviewRepo) ListByBook(ctx context.Context, bookID int64) ([]model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Review, 0)
	for _, rv := range r.s.reviews {
		if rv.BookID == bookID {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return apperror.New(apperror.CodeConflict, "username or email already registered")
		}
	}
	user.ID = r.s.id()
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, notFound("user %d not found", userID)
	}
	return &u, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, notFound("user %q not found", username)
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateNotifications(ctx context.Context, records []model.NotificationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range records {
		records[i].ID = r.s.id()
		r.s.notifications[records[i].ID] = records[i]
	}
	return nil
}

func (r notificationRepo) GetByUserID(ctx context.Context, userID int64) ([]model.NotificationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.NotificationRecord, 0)
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r notificationRepo) MarkRead(ctx context.Context, userID, notificationID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return notFound("notification with id %d not found", notificationID)
	}
	n.IsRead = true
	r.s.notifications[notificationID] = n
	return nil
}
