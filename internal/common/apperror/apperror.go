package apperror

import (
	"errors"
	"fmt"
)

// Code はドメインエラーの種類を表します
// HTTPレスポンスの code フィールドとしてそのまま返却されます
type Code string

const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInvalidRange             Code = "INVALID_RANGE"
	CodeCopyUnavailable          Code = "COPY_UNAVAILABLE"
	CodeReservationLimitExceeded Code = "RESERVATION_LIMIT_EXCEEDED"
	CodeInvalidRating            Code = "INVALID_RATING"
	CodeDuplicateReview          Code = "DUPLICATE_REVIEW"
	CodeForbidden                Code = "FORBIDDEN"
	CodeConflict                 Code = "CONFLICT"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInternal                 Code = "INTERNAL"
)

// Error は呼び出し元がリトライ可能なリクエスト単位のエラーです
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is はコードが一致すれば同一のエラーとみなします
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// 比較用のセンチネルエラー
var (
	ErrNotFound                 = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidRange             = &Error{Code: CodeInvalidRange, Message: "end must be after start"}
	ErrCopyUnavailable          = &Error{Code: CodeCopyUnavailable, Message: "copy is not available"}
	ErrReservationLimitExceeded = &Error{Code: CodeReservationLimitExceeded, Message: "reservation limit exceeded"}
	ErrInvalidRating            = &Error{Code: CodeInvalidRating, Message: "rating must be between 1 and 5"}
	ErrDuplicateReview          = &Error{Code: CodeDuplicateReview, Message: "borrow has already been reviewed"}
	ErrForbidden                = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConflict                 = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized             = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)

// New は指定コードのエラーを作成します
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap は原因となるエラーを保持したまま指定コードのエラーを作成します
func Wrap(code Code, err error, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf はエラーチェーンからコードを取り出します。ドメインエラーでなければ空文字です
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
