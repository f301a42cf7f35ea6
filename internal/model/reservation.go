package model

import "time"

// ReservationStatus は予約のステータスです
// active 以外はすべて完了済み（非アクティブ）として扱います
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusBorrowed  ReservationStatus = "borrowed"
)

// Reservation は蔵書コピーの予約です
// 時刻はすべてUTCで保持します
type Reservation struct {
	ID          int64             `db:"id" json:"id"`
	UserID      int64             `db:"user_id" json:"user_id"`
	CopyID      int64             `db:"copy_id" json:"copy_id"`
	ReserveDate time.Time         `db:"reserve_date" json:"reserve_date"`
	StartTime   time.Time         `db:"start_time" json:"start_time"`
	EndTime     time.Time         `db:"end_time" json:"end_time"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	CompletedAt *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// IsActive は予約がまだ完了していないかを返します
func (r Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsComplete は完了フラグです
func (r Reservation) IsComplete() bool {
	return !r.IsActive()
}

// ReservationDetail はユーザーの予約一覧に表示する情報です
type ReservationDetail struct {
	Reservation
	BookID    int64  `db:"book_id" json:"book_id"`
	BookTitle string `db:"title" json:"title"`
	Language  string `db:"language" json:"language"`
	Location
}

// ReservationEvent は予約が期限切れなどで完了した際に発行されるイベントの構造体
type ReservationEvent struct {
	ReservationID int64             `json:"reservation_id"`
	UserID        int64             `json:"user_id"`
	CopyID        int64             `json:"copy_id"`
	Status        ReservationStatus `json:"status"`
	EndTime       time.Time         `json:"end_time"`
	CreatedAt     time.Time         `json:"created_at"`
}
