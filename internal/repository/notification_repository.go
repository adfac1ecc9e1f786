package repository

import (
	"context"

	"shop/internal/domain/model"
)

// 通知の保存・取得の約束。
// 注文フローからはfire-and-forgetで作成される。
type NotificationRepository interface {
	Create(ctx context.Context, n model.Notification) error
	ListByUserID(ctx context.Context, userID int64, limit int) ([]model.Notification, error)

	//本人の通知のみ既読化できる
	MarkRead(ctx context.Context, notificationID int64, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}
