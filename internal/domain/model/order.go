package model

import "time"

type OrderStatus string

const (
	OrderStatusRequested         OrderStatus = "ORDER_REQUESTED"
	OrderStatusConfirmed         OrderStatus = "ORDER_CONFIRMED"
	OrderStatusShipped           OrderStatus = "ORDER_SHIPPED"
	OrderStatusDelivered         OrderStatus = "ORDER_DELIVERED"
	OrderStatusCancelled         OrderStatus = "ORDER_CANCELLED"
	OrderStatusReturnRequested   OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturnApproved    OrderStatus = "RETURN_APPROVED"
	OrderStatusReturnDisapproved OrderStatus = "RETURN_DISAPPROVED"
)

// 有効なステータス値か
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusRequested, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturnRequested,
		OrderStatusReturnApproved, OrderStatusReturnDisapproved:
		return true
	}
	return false
}

// 注文。作成後はstatusとreason以外は不変。
// 住所は作成時点のスナップショットを持つ（後から住所を編集しても過去の注文は変わらない）。
type Order struct {
	ID       int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Number   string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"number"`
	UserID   int64       `gorm:"not null;index" json:"user_id"`
	Status   OrderStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	Subtotal int64       `gorm:"not null" json:"subtotal"`

	//キャンセル・返品却下の理由
	Reason string `gorm:"type:text" json:"reason,omitempty"`

	//配送先スナップショット
	ShipPostalCode string `gorm:"type:varchar(20);not null" json:"ship_postal_code"`
	ShipPrefecture string `gorm:"type:varchar(100);not null" json:"ship_prefecture"`
	ShipCity       string `gorm:"type:varchar(255);not null" json:"ship_city"`
	ShipLine1      string `gorm:"type:varchar(255);not null" json:"ship_line1"`
	ShipLine2      string `gorm:"type:varchar(255)" json:"ship_line2"`
	ShipName       string `gorm:"type:varchar(255);not null" json:"ship_name"`
	ShipPhone      string `gorm:"type:varchar(30)" json:"ship_phone"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
