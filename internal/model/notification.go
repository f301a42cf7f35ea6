package model

import (
	"fmt"
	"time"
)

// NotificationType は通知の種類を表します
type NotificationType string

const (
	// NotificationTypeReservationExpired は予約の期限切れ通知を表します
	NotificationTypeReservationExpired NotificationType = "reservation_expired"
	// NotificationTypeCommon は共通の通知を表します
	NotificationTypeCommon NotificationType = "common"
)

// Notification はイベントIFを受け取るための定義です
// Step Functions のタスク入出力としてJSONでやり取りされます
type Notification struct {
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Data      map[string]any   `json:"data"`
}

// NotificationRecord は通知のドメインモデルです
// データベースに永続化される通知レコードと一致しています
type NotificationRecord struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	Type      NotificationType `db:"type" json:"type"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// CopyID は通知データに含まれるコピーIDを返します
func (n Notification) CopyID() (int64, error) {
	return int64Field(n.Data, "copy_id")
}

// UserID は通知データに含まれるユーザーIDを返します
func (n Notification) UserID() (int64, error) {
	return int64Field(n.Data, "user_id")
}

// ToNotificationRecord は通知を通知レコードに変換します
// bookTitleMap はコピーIDから書名への対応です
func (n Notification) ToNotificationRecord(bookTitleMap map[int64]string) (*NotificationRecord, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("invalid notification data format")
	}

	userID, err := n.UserID()
	if err != nil {
		return nil, err
	}

	if n.Type == NotificationTypeReservationExpired {
		copyID, err := n.CopyID()
		if err != nil {
			return nil, err
		}
		title, ok := bookTitleMap[copyID]
		if !ok {
			return nil, fmt.Errorf("copy_id %d not found in bookTitleMap", copyID)
		}

		endTime, err := timeField(n.Data, "end_time")
		if err != nil {
			return nil, err
		}

		message := fmt.Sprintf(`予約の受け取り期限が過ぎたため、予約を終了しました。
書名: %s
受け取り期限: %s (UTC)`, title, endTime.UTC().Format("2006-01-02 15:04"))

		return &NotificationRecord{
			UserID:    userID,
			Title:     "予約の期限が切れました",
			Message:   message,
			IsRead:    false,
			Type:      NotificationTypeReservationExpired,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.CreatedAt,
		}, nil
	}

	return &NotificationRecord{
		UserID:    userID,
		Title:     "新しい通知が届きました。",
		Message:   "新しい通知です。",
		IsRead:    false,
		Type:      NotificationTypeCommon,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.CreatedAt,
	}, nil
}

// NewReservationExpiredNotification は予約イベントから通知を作成します
func NewReservationExpiredNotification(event ReservationEvent) Notification {
	return Notification{
		Type:      NotificationTypeReservationExpired,
		CreatedAt: event.CreatedAt,
		Data: map[string]any{
			"reservation_id": event.ReservationID,
			"user_id":        event.UserID,
			"copy_id":        event.CopyID,
			"end_time":       event.EndTime,
		},
	}
}

// JSONを経由すると数値は float64 になるため、整数型との両方を受け付けます
func int64Field(data map[string]any, key string) (int64, error) {
	switch v := data[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("%s is missing", key)
	default:
		return 0, fmt.Errorf("unexpected type for %s: %T", key, v)
	}
}

func timeField(data map[string]any, key string) (time.Time, error) {
	switch v := data[key].(type) {
	case time.Time:
		return v, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s format: %v", key, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected type for %s: %T", key, v)
	}
}
