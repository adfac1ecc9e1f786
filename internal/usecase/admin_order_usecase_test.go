package usecase_test

import (
	"context"
	"testing"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
	"shop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type adminOrderUCFixture struct {
	tx            *TxManagerMock
	orders        *OrderRepoMock
	orderItems    *OrderItemRepoMock
	inventory     *InventoryRepoMock
	notifications *NotificationRepoMock
	users         *UserRepoMock
	audit         *AuditRepoMock
	events        *eventRecorder
	uc            *usecase.AdminOrderUsecase
}

func newAdminOrderUCFixture() *adminOrderUCFixture {
	f := &adminOrderUCFixture{
		tx:            new(TxManagerMock),
		orders:        new(OrderRepoMock),
		orderItems:    new(OrderItemRepoMock),
		inventory:     new(InventoryRepoMock),
		notifications: new(NotificationRepoMock),
		users:         new(UserRepoMock),
		audit:         new(AuditRepoMock),
		events:        &eventRecorder{},
	}
	f.tx.Repos = &TxReposMock{
		orders:        f.orders,
		orderItems:    f.orderItems,
		inventory:     f.inventory,
		notifications: f.notifications,
		users:         f.users,
	}
	f.uc = usecase.NewAdminOrderUsecase(f.tx, f.audit, f.events, testLogger())
	return f
}

func (f *adminOrderUCFixture) expectOrder(status model.OrderStatus) {
	f.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Number: "ord-0001", UserID: 1, Status: status,
	}, nil)
}

func (f *adminOrderUCFixture) expectNoAdminBroadcast() {
	f.users.On("ListAdmins", mock.Anything).Return([]model.User{}, nil)
}

// =====================
// List
// =====================

func TestAdminOrderUsecase_List_NormalizesPaging(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)

	f.orders.On("ListAdmin", mock.Anything, mock.MatchedBy(func(flt repo.AdminOrderListFilter) bool {
		return flt.Page == 1 && flt.Limit == 20
	})).Return([]model.Order{}, int64(0), nil)

	out, err := f.uc.List(context.Background(), usecase.AdminOrderListInput{Page: 0, Limit: 9999})
	assert.NoError(t, err)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, 20, out.Limit)
	assert.Empty(t, out.Orders)
}

func TestAdminOrderUsecase_List_InvalidStatus(t *testing.T) {
	f := newAdminOrderUCFixture()

	_, err := f.uc.List(context.Background(), usecase.AdminOrderListInput{Status: "BOGUS"})
	assertErrContains(t, err, "invalid status")
}

func TestAdminOrderUsecase_List_PassesFilterThrough(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)

	uid := int64(7)
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f.orders.On("ListAdmin", mock.Anything, mock.MatchedBy(func(flt repo.AdminOrderListFilter) bool {
		return flt.Status == string(model.OrderStatusShipped) &&
			flt.UserID != nil && *flt.UserID == 7 &&
			flt.From != nil && flt.From.Equal(from)
	})).Return([]model.Order{{ID: 42, Status: model.OrderStatusShipped}}, int64(1), nil)
	f.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.List(context.Background(), usecase.AdminOrderListInput{
		Status: string(model.OrderStatusShipped), UserID: &uid, From: &from, Page: 1, Limit: 20,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Len(t, out.Orders, 1)
}

// =====================
// ガード付き遷移
// =====================

func TestAdminOrderUsecase_Confirm_Success(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusRequested)

	f.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusConfirmed).Return(nil)
	f.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.UserID == 1 && n.Type == model.NotificationSuccess
	})).Return(nil).Once()

	err := f.uc.Confirm(context.Background(), 42)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.events.Count())

	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	f.notifications.AssertExpectations(t)
}

func TestAdminOrderUsecase_Confirm_WrongStatus(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusShipped)

	err := f.uc.Confirm(context.Background(), 42)
	assertErrContains(t, err, "Only requested orders can be confirmed")
	assert.Equal(t, 0, f.events.Count())
}

func TestAdminOrderUsecase_CancelByAdmin_RestoresStockAndRecordsReason(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusRequested)

	f.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{ProductID: 100, Quantity: 3},
	}, nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(100), int64(3)).Return(nil)
	f.orders.On("UpdateStatusReason", mock.Anything, int64(42), model.OrderStatusCancelled, "out of print").Return(nil)
	f.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.UserID == 1 && n.Type == model.NotificationError &&
			n.Message == "Your order ord-0001 has been canceled: out of print"
	})).Return(nil).Once()

	err := f.uc.CancelByAdmin(context.Background(), 42, "out of print")
	assert.NoError(t, err)

	f.inventory.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.notifications.AssertExpectations(t)
}

func TestAdminOrderUsecase_MarkShipped_DoesNotTouchStock(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusConfirmed)

	f.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusShipped).Return(nil)
	f.notifications.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := f.uc.MarkShipped(context.Background(), 42)
	assert.NoError(t, err)

	//出荷は物流のイベントであって在庫操作ではない
	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	f.inventory.AssertNotCalled(t, "DecreaseStockIfEnough", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_MarkDelivered_DoesNotTouchStock(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusShipped)

	f.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusDelivered).Return(nil)
	f.notifications.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := f.uc.MarkDelivered(context.Background(), 42)
	assert.NoError(t, err)

	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_MarkDelivered_WrongStatus(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusConfirmed)

	err := f.uc.MarkDelivered(context.Background(), 42)
	assertErrContains(t, err, "Only shipped orders can be delivered")
}

func TestAdminOrderUsecase_ApproveReturn_RestoresStock(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusReturnRequested)

	f.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{ProductID: 100, Quantity: 1},
		{ProductID: 200, Quantity: 2},
	}, nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(100), int64(1)).Return(nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(200), int64(2)).Return(nil)
	f.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusReturnApproved).Return(nil)
	f.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.Type == model.NotificationSuccess
	})).Return(nil)

	err := f.uc.ApproveReturn(context.Background(), 42)
	assert.NoError(t, err)

	f.inventory.AssertExpectations(t)
}

func TestAdminOrderUsecase_DisapproveReturn_ReasonRequired(t *testing.T) {
	f := newAdminOrderUCFixture()

	err := f.uc.DisapproveReturn(context.Background(), 42, "   ")
	assertErrContains(t, err, "reason required")
}

func TestAdminOrderUsecase_DisapproveReturn_NotifiesUserAndAdmins(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusReturnRequested)

	f.orders.On("UpdateStatusReason", mock.Anything, int64(42), model.OrderStatusReturnDisapproved, "outside policy").Return(nil)
	f.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.UserID == 1 && n.Type == model.NotificationError
	})).Return(nil).Once()
	f.users.On("ListAdmins", mock.Anything).Return([]model.User{{ID: 9}}, nil)
	f.notifications.On("Create", mock.Anything, mock.MatchedBy(func(n model.Notification) bool {
		return n.UserID == 9 && n.Type == model.NotificationInfo
	})).Return(nil).Once()

	err := f.uc.DisapproveReturn(context.Background(), 42, "outside policy")
	assert.NoError(t, err)

	//却下は返品棚戻しなし
	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	f.notifications.AssertExpectations(t)
}

// =====================
// OverrideStatus
// =====================

func TestAdminOrderUsecase_OverrideStatus_InvalidStatus(t *testing.T) {
	f := newAdminOrderUCFixture()

	err := f.uc.OverrideStatus(context.Background(), 9, 42, "NOT_A_STATUS")
	assertErrContains(t, err, "invalid status")
}

func TestAdminOrderUsecase_OverrideStatus_NotFound(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)

	f.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{}, repo.ErrNotFound)

	err := f.uc.OverrideStatus(context.Background(), 9, 42, string(model.OrderStatusShipped))
	assertErrContains(t, err, "not found")
}

func TestAdminOrderUsecase_OverrideStatus_SameStatusIsNoop(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusShipped)

	err := f.uc.OverrideStatus(context.Background(), 9, 42, string(model.OrderStatusShipped))
	assert.NoError(t, err)

	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.events.Count())
}

func TestAdminOrderUsecase_OverrideStatus_WritesAudit(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusRequested)

	f.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusDelivered).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(entry model.AuditLog) bool {
		return entry.ActorUserID == 9 &&
			entry.Action == model.AuditActionUpdateOrderStatus &&
			entry.ResourceType == model.AuditResourceOrder &&
			entry.ResourceID == 42 &&
			entry.BeforeJSON == `{"status":"ORDER_REQUESTED"}` &&
			entry.AfterJSON == `{"status":"ORDER_DELIVERED"}`
	})).Return(nil).Once()

	err := f.uc.OverrideStatus(context.Background(), 9, 42, string(model.OrderStatusDelivered))
	assert.NoError(t, err)
	assert.Equal(t, 1, f.events.Count())

	//上書きは監査だけ。在庫も通知も動かさない
	f.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	f.notifications.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.audit.AssertExpectations(t)
}

// =====================
// DeleteOrder
// =====================

func TestAdminOrderUsecase_DeleteOrder_ActiveOrderForbidden(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusConfirmed)

	err := f.uc.DeleteOrder(context.Background(), 9, 42)
	assertErrContains(t, err, "cannot be deleted")

	f.orders.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_DeleteOrder_CancelledOrder_WritesAudit(t *testing.T) {
	f := newAdminOrderUCFixture()
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.expectOrder(model.OrderStatusCancelled)

	f.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{ProductID: 100, Quantity: 1},
	}, nil)
	f.inventory.On("IncreaseStock", mock.Anything, int64(100), int64(1)).Return(nil)
	f.orderItems.On("DeleteByOrderID", mock.Anything, int64(42)).Return(nil)
	f.orders.On("Delete", mock.Anything, int64(42)).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(entry model.AuditLog) bool {
		return entry.Action == model.AuditActionDeleteOrder && entry.ResourceID == 42
	})).Return(nil).Once()

	err := f.uc.DeleteOrder(context.Background(), 9, 42)
	assert.NoError(t, err)

	f.inventory.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}
