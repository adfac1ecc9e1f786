package model

import (
	"time"

	"gorm.io/gorm"
)

type Product struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	//価格は最小通貨単位（0は「割引なし」）
	RetailPrice            int64 `gorm:"not null" json:"retail_price"`
	RetailDiscountPrice    int64 `gorm:"not null;default:0" json:"retail_discount_price"`
	WholesalePrice         int64 `gorm:"not null" json:"wholesale_price"`
	WholesaleDiscountPrice int64 `gorm:"not null;default:0" json:"wholesale_discount_price"`

	Stock    int64  `gorm:"not null" json:"stock"`
	Image    string `gorm:"type:varchar(255)" json:"image"`
	IsActive bool   `gorm:"not null;default:false" json:"is_active"`

	//カラー展開（空なら色指定不要の商品）
	Colors []ProductColor `gorm:"constraint:OnDelete:CASCADE" json:"colors"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type ProductColor struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64  `gorm:"not null;index" json:"product_id"`
	Name      string `gorm:"type:varchar(100);not null" json:"name"`
	Hex       string `gorm:"type:varchar(20)" json:"hex"`
}
