package repository

import (
	"testing"

	"shop/internal/domain/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Product{},
		&model.ProductColor{},
		&model.Cart{},
		&model.CartItem{},
		&model.Address{},
		&model.Order{},
		&model.OrderItem{},
		&model.Notification{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, stock int64) model.Product {
	t.Helper()

	p := model.Product{
		Name:           name,
		RetailPrice:    1200,
		WholesalePrice: 900,
		Stock:          stock,
		IsActive:       true,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p
}
