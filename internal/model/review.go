package model

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review は貸出に対するレビューです
// 貸出1件につきレビューは1件のみです
type Review struct {
	ID        int64     `db:"id" json:"id"`
	BorrowID  int64     `db:"borrow_id" json:"borrow_id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	Rating    int       `db:"rating" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ValidRating は評価値が 1..5 に収まっているかを返します
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
