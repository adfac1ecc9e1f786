package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, r *OrderGormRepository, userID int64, number string, status model.OrderStatus) int64 {
	t.Helper()

	id, err := r.Create(context.Background(), model.Order{
		Number:         number,
		UserID:         userID,
		Status:         status,
		Subtotal:       3200,
		ShipPostalCode: "150-0001",
		ShipPrefecture: "Tokyo",
		ShipCity:       "Shibuya",
		ShipLine1:      "1-2-3",
		ShipName:       "Taro Yamada",
	})
	require.NoError(t, err)
	return id
}

func TestOrderGormRepository_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	id := createOrder(t, r, 1, "ord-0001", model.OrderStatusRequested)

	got, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "ord-0001", got.Number)
	require.Equal(t, model.OrderStatusRequested, got.Status)
	require.Equal(t, "Shibuya", got.ShipCity)
}

func TestOrderGormRepository_FindByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	_, err := r.FindByID(context.Background(), 9999)
	require.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestOrderGormRepository_UpdateStatusReason(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	id := createOrder(t, r, 1, "ord-0001", model.OrderStatusRequested)

	require.NoError(t, r.UpdateStatusReason(context.Background(), id, model.OrderStatusCancelled, "changed my mind"))

	got, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusCancelled, got.Status)
	require.Equal(t, "changed my mind", got.Reason)
}

func TestOrderGormRepository_ListByUserID_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	createOrder(t, r, 1, "ord-0001", model.OrderStatusRequested)
	createOrder(t, r, 1, "ord-0002", model.OrderStatusConfirmed)
	createOrder(t, r, 2, "ord-0003", model.OrderStatusRequested)

	items, total, err := r.ListByUserID(context.Background(), 1, 1, 50)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	require.Equal(t, "ord-0002", items[0].Number)
}

func TestOrderGormRepository_ListAdmin_Filters(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	createOrder(t, r, 1, "ord-0001", model.OrderStatusRequested)
	createOrder(t, r, 1, "ord-0002", model.OrderStatusShipped)
	createOrder(t, r, 2, "ord-0003", model.OrderStatusShipped)

	//status絞り込み
	items, total, err := r.ListAdmin(context.Background(), repo.AdminOrderListFilter{
		Status: string(model.OrderStatusShipped), Page: 1, Limit: 20,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)

	//user_id絞り込みとの組み合わせ
	uid := int64(2)
	items, total, err = r.ListAdmin(context.Background(), repo.AdminOrderListFilter{
		Status: string(model.OrderStatusShipped), UserID: &uid, Page: 1, Limit: 20,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "ord-0003", items[0].Number)
}

func TestOrderGormRepository_ListAdmin_DateRange(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	createOrder(t, r, 1, "ord-0001", model.OrderStatusRequested)

	future := time.Now().Add(24 * time.Hour)
	_, total, err := r.ListAdmin(context.Background(), repo.AdminOrderListFilter{
		From: &future, Page: 1, Limit: 20,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
}

func TestOrderGormRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	r := NewOrderGormRepository(db)

	id := createOrder(t, r, 1, "ord-0001", model.OrderStatusCancelled)

	require.NoError(t, r.Delete(context.Background(), id))

	_, err := r.FindByID(context.Background(), id)
	require.True(t, errors.Is(err, repo.ErrNotFound))

	require.ErrorIs(t, r.Delete(context.Background(), id), repo.ErrNotFound)
}

func TestOrderItemGormRepository_CreateBulkAndList(t *testing.T) {
	db := newTestDB(t)
	orders := NewOrderGormRepository(db)
	items := NewOrderItemGormRepository(db)

	orderID := createOrder(t, orders, 1, "ord-0001", model.OrderStatusRequested)

	require.NoError(t, items.CreateBulk(context.Background(), orderID, []model.OrderItem{
		{ProductID: 100, ProductNameSnapshot: "Mug", UnitPriceSnapshot: 1200, Quantity: 2},
		{ProductID: 200, ProductNameSnapshot: "Plate", Color: "White", UnitPriceSnapshot: 800, Quantity: 1},
	}))

	got, err := items.ListByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Mug", got[0].ProductNameSnapshot)

	require.NoError(t, items.DeleteByOrderID(context.Background(), orderID))
	got, err = items.ListByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.Empty(t, got)
}
