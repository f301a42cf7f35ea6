package utils

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ParseLocalDateTime は日付(YYYY-MM-DD)と時刻(HH:MM)を loc の壁時計として解釈し、UTCに変換します
// 入力のタイムゾーン変換はこの境界で一度だけ行い、以降はUTCのみを扱います
func ParseLocalDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+clockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t.UTC(), nil
}

// ParseDate は日付(YYYY-MM-DD)を暦日として解釈し、UTCの0時で返します
// 暦日は時点ではないためタイムゾーン変換を行いません
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}
