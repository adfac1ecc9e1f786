package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	audit  repo.AuditLogRepository
	events EventPublisher
	log    *slog.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, audit repo.AuditLogRepository, events EventPublisher, log *slog.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, audit: audit, events: events, log: log}
}

type AdminOrderListInput struct {
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

type AdminOrderListOutput struct {
	Orders []OrderOutput `json:"orders"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

func (u *AdminOrderUsecase) List(ctx context.Context, in AdminOrderListInput) (AdminOrderListOutput, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Status != "" && !model.OrderStatus(in.Status).Valid() {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out AdminOrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Status: in.Status,
			UserID: in.UserID,
			From:   in.From,
			To:     in.To,
			Page:   in.Page,
			Limit:  in.Limit,
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			//一覧は件数が多いので画像の引き直しはしない
			outs = append(outs, (&OrderUsecase{}).toOrderOutput(o, items, nil))
		}

		out = AdminOrderListOutput{Orders: outs, Total: total, Page: in.Page, Limit: in.Limit}
		return nil
	})

	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

// Confirm は ORDER_REQUESTED -> ORDER_CONFIRMED
func (u *AdminOrderUsecase) Confirm(ctx context.Context, orderID int64) error {
	return u.transition(ctx, orderID, transitionSpec{
		from:      model.OrderStatusRequested,
		to:        model.OrderStatusConfirmed,
		guardMsg:  "Only requested orders can be confirmed",
		notifyFmt: "Your order %s has been confirmed",
		notifyTyp: model.NotificationSuccess,
	})
}

// CancelByAdmin は ORDER_REQUESTED -> ORDER_CANCELLED。在庫を戻して理由を記録する。
func (u *AdminOrderUsecase) CancelByAdmin(ctx context.Context, orderID int64, reason string) error {
	return u.transition(ctx, orderID, transitionSpec{
		from:         model.OrderStatusRequested,
		to:           model.OrderStatusCancelled,
		guardMsg:     "Only requested orders can be canceled",
		reason:       reason,
		restoreStock: true,
		notifyFmt:    "Your order %s has been canceled",
		notifyTyp:    model.NotificationError,
	})
}

// MarkShipped は ORDER_CONFIRMED -> ORDER_SHIPPED。在庫は動かさない。
func (u *AdminOrderUsecase) MarkShipped(ctx context.Context, orderID int64) error {
	return u.transition(ctx, orderID, transitionSpec{
		from:      model.OrderStatusConfirmed,
		to:        model.OrderStatusShipped,
		guardMsg:  "Only confirmed orders can be shipped",
		notifyFmt: "Your order %s has been shipped",
		notifyTyp: model.NotificationInfo,
	})
}

// MarkDelivered は ORDER_SHIPPED -> ORDER_DELIVERED
func (u *AdminOrderUsecase) MarkDelivered(ctx context.Context, orderID int64) error {
	return u.transition(ctx, orderID, transitionSpec{
		from:      model.OrderStatusShipped,
		to:        model.OrderStatusDelivered,
		guardMsg:  "Only shipped orders can be delivered",
		notifyFmt: "Your order %s has been delivered",
		notifyTyp: model.NotificationSuccess,
	})
}

// ApproveReturn は RETURN_REQUESTED -> RETURN_APPROVED。商品が戻る前提で在庫を戻す。
func (u *AdminOrderUsecase) ApproveReturn(ctx context.Context, orderID int64) error {
	return u.transition(ctx, orderID, transitionSpec{
		from:         model.OrderStatusReturnRequested,
		to:           model.OrderStatusReturnApproved,
		guardMsg:     "Only return-requested orders can be approved",
		restoreStock: true,
		notifyFmt:    "Return for order %s has been approved",
		notifyTyp:    model.NotificationSuccess,
	})
}

// DisapproveReturn は RETURN_REQUESTED -> RETURN_DISAPPROVED。在庫は動かさない。
func (u *AdminOrderUsecase) DisapproveReturn(ctx context.Context, orderID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return NewHTTPError(http.StatusBadRequest, "reason required")
	}
	return u.transition(ctx, orderID, transitionSpec{
		from:         model.OrderStatusReturnRequested,
		to:           model.OrderStatusReturnDisapproved,
		guardMsg:     "Only return-requested orders can be disapproved",
		reason:       reason,
		notifyFmt:    "Return for order %s has been disapproved",
		notifyTyp:    model.NotificationError,
		notifyAdmins: true,
	})
}

type transitionSpec struct {
	from         model.OrderStatus
	to           model.OrderStatus
	guardMsg     string
	reason       string
	restoreStock bool
	notifyFmt    string
	notifyTyp    model.NotificationType
	notifyAdmins bool
}

// ガード付き遷移の共通処理
func (u *AdminOrderUsecase) transition(ctx context.Context, orderID int64, spec transitionSpec) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.Status != spec.from {
			return NewHTTPError(http.StatusBadRequest, spec.guardMsg)
		}

		if spec.restoreStock {
			if err := restoreOrderStock(ctx, r, orderID); err != nil {
				return err
			}
		}

		if spec.reason != "" {
			err = r.Orders().UpdateStatusReason(ctx, orderID, spec.to, spec.reason)
		} else {
			err = r.Orders().UpdateStatus(ctx, orderID, spec.to)
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		msg := fmt.Sprintf(spec.notifyFmt, o.Number)
		if spec.reason != "" {
			msg = msg + ": " + spec.reason
		}
		if err := notifyUser(ctx, r, o.UserID, orderID, msg, spec.notifyTyp); err != nil {
			return err
		}
		if spec.notifyAdmins {
			if err := notifyAdmins(ctx, r, orderID, fmt.Sprintf("Return for order %s disapproved", o.Number), model.NotificationInfo); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return err
	}

	publishOrderEvent(ctx, u.events, u.log, orderEvent{
		Type:    "order_status_changed",
		OrderID: orderID,
		From:    string(spec.from),
		To:      string(spec.to),
	})

	return nil
}

// OverrideStatus はガードを通さない管理者用の直接上書き。
// 在庫・通知の副作用は起こさず、監査ログだけ残す。
func (u *AdminOrderUsecase) OverrideStatus(ctx context.Context, actorID int64, orderID int64, status string) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s := model.OrderStatus(status)
	if !s.Valid() {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var from model.OrderStatus

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		from = o.Status

		if o.Status == s {
			return nil
		}
		if err := r.Orders().UpdateStatus(ctx, orderID, s); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})

	if err != nil {
		return err
	}
	if from == s {
		return nil
	}

	u.writeAudit(ctx, actorID, model.AuditActionUpdateOrderStatus, orderID, string(from), string(s))

	publishOrderEvent(ctx, u.events, u.log, orderEvent{
		Type:    "order_status_changed",
		OrderID: orderID,
		From:    string(from),
		To:      string(s),
	})

	return nil
}

// DeleteOrder は管理者による削除。
// 完了系ステータスでなければ403。削除ガードと在庫戻しはユーザー削除と共通。
func (u *AdminOrderUsecase) DeleteOrder(ctx context.Context, actorID int64, orderID int64) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return deleteOrder(ctx, r, o)
	})

	if err != nil {
		return err
	}

	u.writeAudit(ctx, actorID, model.AuditActionDeleteOrder, orderID, "", "")
	return nil
}

// 監査ログの書き込み失敗は本処理を失敗させない
func (u *AdminOrderUsecase) writeAudit(ctx context.Context, actorID int64, action model.AuditAction, orderID int64, before string, after string) {
	if u.audit == nil {
		return
	}
	entry := model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   auditStatusJSON(before),
		AfterJSON:    auditStatusJSON(after),
	}
	if err := u.audit.Create(ctx, entry); err != nil && u.log != nil {
		u.log.Warn("audit log write failed", "action", string(action), "order_id", orderID, "error", err)
	}
}

func auditStatusJSON(status string) string {
	if status == "" {
		return ""
	}
	b, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return ""
	}
	return string(b)
}
