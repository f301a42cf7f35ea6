package model

import "time"

// Book は蔵書のドメインモデルです
type Book struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Author        string    `db:"author" json:"author"`
	Description   string    `db:"description" json:"description"`
	Category      string    `db:"category" json:"category"`
	ISBN          string    `db:"isbn" json:"isbn"`
	PublishedDate time.Time `db:"published_date" json:"published_date"`
	CoverImage    string    `db:"cover_image" json:"cover_image"`
	// 集計値。レビューが無い場合は nil
	AverageRating *float64 `db:"average_rating" json:"average_rating"`
	ReviewCount   int      `db:"review_count" json:"review_count"`
}

// Category は蔵書の分類です
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// BookFilter は蔵書一覧の絞り込み条件です
// 各フィールドはAND、Categories内はORで評価されます
type BookFilter struct {
	Categories      []int64
	MinRating       *int
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
}

// CopyStatus は蔵書コピーの貸出状態です
// 予約/貸出テーブルから導出され、独立したフラグとしては保持しません
type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "available"
	CopyStatusReserved  CopyStatus = "reserved"
	CopyStatusBorrowed  CopyStatus = "borrowed"
)

// Location は配架場所です
type Location struct {
	Floor   int    `db:"floor" json:"floor"`
	Section string `db:"section" json:"section"`
	Shelf   int    `db:"shelf" json:"shelf"`
	Row     int    `db:"row_num" json:"row"`
}

// BookCopy は言語ごとの物理的な蔵書コピーです
type BookCopy struct {
	ID       int64  `db:"id" json:"id"`
	BookID   int64  `db:"book_id" json:"book_id"`
	Language string `db:"language" json:"language"`
	Location
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CopyWithStatus は状態を付与したコピーです
type CopyWithStatus struct {
	BookCopy
	Status CopyStatus `json:"status"`
}

// LanguageGroup は言語ごとにまとめたコピーの一覧です
// Expanded は初期表示で展開するグループ（先頭のみ true）を示します
type LanguageGroup struct {
	Language string           `json:"language"`
	Expanded bool             `json:"expanded"`
	Copies   []CopyWithStatus `json:"copies"`
}
