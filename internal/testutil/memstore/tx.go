package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

// memTx は Store に対するトランザクションです
// 更新ごとに取り消し操作を積み、rollback で逆順に適用します
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	return t.LockReservation(ctx, reservationID)
}

func (t *memTx) GetBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	return t.LockBorrow(ctx, borrowID)
}

func (t *memTx) LockCopy(ctx context.Context, copyID int64) (*model.BookCopy, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.copies[copyID]
	if !ok {
		return nil, notFound("copy %d not found", copyID)
	}
	return &c, nil
}

func (t *memTx) LockUser(ctx context.Context, userID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.users[userID]; !ok {
		return notFound("user %d not found", userID)
	}
	return nil
}

func (t *memTx) LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.reservations[reservationID]
	if !ok {
		return nil, notFound("reservation %d not found", reservationID)
	}
	return &r, nil
}

func (t *memTx) LockBorrow(ctx context.Context, borrowID int64) (*model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.borrows[borrowID]
	if !ok {
		return nil, notFound("borrow %d not found", borrowID)
	}
	return &b, nil
}

func (t *memTx) ActiveReservationsByCopy(ctx context.Context, copyID int64) ([]model.Reservation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, r := range t.s.reservations {
		if r.CopyID == copyID && r.IsActive() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ActiveBorrowsByCopy(ctx context.Context, copyID int64) ([]model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make([]model.Borrow, 0)
	for _, b := range t.s.borrows {
		if b.CopyID == copyID && b.IsActive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CountActiveReservationsByUser(ctx context.Context, userID int64) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for _, r := range t.s.reservations {
		if r.UserID == userID && r.IsActive() {
			n++
		}
	}
	return n, nil
}

// InsertReservation はアクティブな予約の一意制約を模倣します
func (t *memTx) InsertReservation(ctx context.Context, reservation *model.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range t.s.reservations {
		if r.CopyID == reservation.CopyID && r.IsActive() {
			return apperror.New(apperror.CodeCopyUnavailable, "copy %d already has an active reservation", reservation.CopyID)
		}
	}
	reservation.ID = t.s.id()
	t.s.reservations[reservation.ID] = *reservation

	id := reservation.ID
	t.undo = append(t.undo, func() { delete(t.s.reservations, id) })
	return nil
}

func (t *memTx) UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.reservations[reservationID]
	if !ok {
		return notFound("no reservation found with ID %d", reservationID)
	}
	next := prev
	next.Status = status
	next.CompletedAt = &at
	t.s.reservations[reservationID] = next

	t.undo = append(t.undo, func() { t.s.reservations[reservationID] = prev })
	return nil
}

func (t *memTx) InsertBorrow(ctx context.Context, borrow *model.Borrow) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.borrows {
		if b.CopyID == borrow.CopyID && b.IsActive() {
			return apperror.New(apperror.CodeCopyUnavailable, "copy %d is already borrowed", borrow.CopyID)
		}
	}
	borrow.ID = t.s.id()
	t.s.borrows[borrow.ID] = *borrow

	id := borrow.ID
	t.undo = append(t.undo, func() { delete(t.s.borrows, id) })
	return nil
}

func (t *memTx) MarkBorrowReturned(ctx context.Context, borrowID int64, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.borrows[borrowID]
	if !ok || !prev.IsActive() {
		return notFound("no active borrow found with ID %d", borrowID)
	}
	next := prev
	next.ReturnedAt = &at
	t.s.borrows[borrowID] = next

	t.undo = append(t.undo, func() { t.s.borrows[borrowID] = prev })
	return nil
}
