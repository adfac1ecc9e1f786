package repository

import (
	"context"

	"shop/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同一商品・同一カラーはプラス
	UpsertByCartProductColor(ctx context.Context, cartID int64, productID int64, color string, addQty int64, unitPriceSnapshot int64) error
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error

	//注文確定後の消し込み（productID + color + quantity が完全一致した明細だけ消す）
	DeleteMatching(ctx context.Context, cartID int64, productID int64, color string, qty int64) error

	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error)
}
