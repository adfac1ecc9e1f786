package repository

import (
	"context"

	"shop/internal/domain/model"
)

// ユーザーの保存・取得を約束。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	//注文イベントの管理者通知に使う
	ListAdmins(ctx context.Context) ([]model.User, error)

	// ユーザー情報の更新=>アクティブかどうか・ロールの変更・最後のログイン更新など
	Update(ctx context.Context, user *model.User) error
	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
