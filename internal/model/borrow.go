package model

import "time"

// Borrow は蔵書コピーの貸出記録です
// 予約とは独立したライフサイクルを持ちます（予約なしの貸出もあり得ます）
type Borrow struct {
	ID     int64 `db:"id" json:"id"`
	UserID int64 `db:"user_id" json:"user_id"`
	CopyID int64 `db:"copy_id" json:"copy_id"`
	// 貸出時点のコピーの言語を非正規化して保持します
	Language   string     `db:"language" json:"language"`
	BorrowedAt time.Time  `db:"borrowed_at" json:"borrowed_at"`
	ReturnDate time.Time  `db:"return_date" json:"return_date"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

// IsActive は返却済みでない貸出かを返します
func (b Borrow) IsActive() bool {
	return b.ReturnedAt == nil
}

// BorrowDetail はユーザーの貸出一覧に表示する情報です
type BorrowDetail struct {
	Borrow
	BookID    int64  `db:"book_id" json:"book_id"`
	BookTitle string `db:"title" json:"title"`
	Location
	Reviewed bool `db:"reviewed" json:"reviewed"`
}
