package handler

// RegisterReq は利用者登録のリクエストです
type RegisterReq struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email"`
	Address   string `json:"address" validate:"max=255"`
	NIC       string `json:"nic" validate:"max=20"`
	Mobile    string `json:"mobile" validate:"omitempty,e164"`
}

type LoginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResp struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// FilterBooksReq は書籍の絞り込み条件です。未指定の項目は条件に含めません
// 評価の範囲チェックはサービス側で行い INVALID_RATING を返します
type FilterBooksReq struct {
	Categories      []int64 `json:"categories" validate:"dive,gt=0"`
	MinRating       *int    `json:"min_rating"`
	PublishedAfter  string  `json:"published_after" validate:"omitempty,datetime=2006-01-02"`
	PublishedBefore string  `json:"published_before" validate:"omitempty,datetime=2006-01-02"`
}

// CreateReservationReq は予約のリクエストです
// 日付と時刻は図書館のタイムゾーンの壁時計として解釈します
type CreateReservationReq struct {
	CopyID    int64  `json:"copy_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

// CreateReviewReq はレビューのリクエストです
// book_id は参考値で、実際の書籍は貸出から導出します
type CreateReviewReq struct {
	BorrowID int64  `json:"borrow_id" validate:"required,gt=0"`
	BookID   int64  `json:"book_id"`
	Rating   int    `json:"rating"`
	Text     string `json:"text" validate:"max=2000"`
}

// CheckoutReq は職員による貸出のリクエストです
type CheckoutReq struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	CopyID     int64  `json:"copy_id" validate:"required,gt=0"`
	ReturnDate string `json:"return_date" validate:"required,datetime=2006-01-02"`
}
