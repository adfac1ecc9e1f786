package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

// 現在時刻（キャンセル可能時間の判定をテストできるように注入する）
type Clock interface {
	Now() time.Time
}

// 注文番号（UUID等）を作る約束
type IDGenerator interface {
	NewID() string
}

// Kafkaなどへのイベント発行。nilなら発行しない。
// 発行失敗はログするだけで注文処理は失敗させない。
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

type OrderUsecase struct {
	tx        repo.TransactionManager
	users     repo.UserRepository
	addresses repo.AddressRepository
	events    EventPublisher
	idGen     IDGenerator
	clock     Clock

	//ユーザー自身がキャンセルできる時間（注文作成からの経過で判定）
	cancelWindow time.Duration

	//画像ファイル名をURLへ書き換えるときのベース
	assetBaseURL string

	log *slog.Logger
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	users repo.UserRepository,
	addresses repo.AddressRepository,
	events EventPublisher,
	idGen IDGenerator,
	clock Clock,
	cancelWindow time.Duration,
	assetBaseURL string,
	log *slog.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:           tx,
		users:        users,
		addresses:    addresses,
		events:       events,
		idGen:        idGen,
		clock:        clock,
		cancelWindow: cancelWindow,
		assetBaseURL: assetBaseURL,
		log:          log,
	}
}

// クライアントが送る明細。priceはサーバー計算値との照合にだけ使う。
type OrderLineItemInput struct {
	ProductID int64
	Color     string
	Quantity  int64
	Price     int64
}

type PlaceOrderInput struct {
	AddressID int64
	Items     []OrderLineItemInput
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

type OrderAddressOutput struct {
	PostalCode string `json:"postal_code"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
}

type OrderOutput struct {
	ID        int64              `json:"id"`
	Number    string             `json:"number"`
	UserID    int64              `json:"user_id"`
	Status    string             `json:"status"`
	Subtotal  int64              `json:"subtotal"`
	Reason    string             `json:"reason,omitempty"`
	Address   OrderAddressOutput `json:"address"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []OrderItemOutput  `json:"items"`
}

// PlaceOrder は注文を作成する。
// 価格照合・カラー検証・在庫減算・通知・カート消し込みまでをひとつのTxで行う。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.AddressID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid address_id")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "products required")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		if it.Quantity < 1 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
	}

	//注文者の存在確認（ロールで価格帯が決まる）
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "user not found")
	}

	//address_idの存在確認＋所有チェック
	addr, err := u.addresses.FindByID(ctx, in.AddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, NewHTTPError(http.StatusNotFound, "address not found")
		}
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if addr.UserID != userID {
		return OrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	var out OrderOutput

	//注文処理はトランザクション。途中で失敗したら在庫減算ごとロールバックされる
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := u.clock.Now()
		number := u.idGen.NewID()

		orderItems := make([]model.OrderItem, 0, len(in.Items))
		images := make(map[int64]string, len(in.Items))
		var subtotal int64 = 0

		for _, it := range in.Items {
			//商品取得
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "product not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("product unavailable: %s", p.Name))
			}

			//サーバー計算価格とクライアント提示価格の照合。
			//古いカート価格や改ざんをここで弾く
			price := unitPriceFor(p, user.Role)
			if it.Price != price {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("price mismatch for %s", p.Name))
			}

			//カラー展開がある商品はcolor必須＋宣言済みのものだけ
			color := strings.TrimSpace(it.Color)
			if len(p.Colors) > 0 {
				if color == "" {
					return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("color required for %s", p.Name))
				}
				if !matchesColor(p, color) {
					return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid color for %s", p.Name))
				}
			}

			//在庫減算（足りないなら false）
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("insufficient stock for %s: %d left", p.Name, p.Stock))
			}

			orderItems = append(orderItems, model.OrderItem{
				ProductID:           it.ProductID,
				ProductNameSnapshot: p.Name,
				Color:               color,
				UnitPriceSnapshot:   price,
				Quantity:            it.Quantity,
				CreatedAt:           now,
			})
			images[it.ProductID] = p.Image

			subtotal += price * it.Quantity
		}

		//住所はスナップショットとしてコピー
		order := model.Order{
			Number:         number,
			UserID:         userID,
			Status:         model.OrderStatusRequested,
			Subtotal:       subtotal,
			ShipPostalCode: addr.PostalCode,
			ShipPrefecture: addr.Prefecture,
			ShipCity:       addr.City,
			ShipLine1:      addr.Line1,
			ShipLine2:      addr.Line2,
			ShipName:       addr.Name,
			ShipPhone:      addr.Phone,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//本人へsuccess、管理者全員へinfo
		if err := notifyUser(ctx, r, userID, orderID, fmt.Sprintf("Your order %s has been placed", number), model.NotificationSuccess); err != nil {
			return err
		}
		if err := notifyAdmins(ctx, r, orderID, fmt.Sprintf("New order %s placed by user %d", number, userID), model.NotificationInfo); err != nil {
			return err
		}

		//カート消し込み（productID + color + quantity 完全一致のみ）
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if err != nil && err != repo.ErrNotFound {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err == nil {
			for _, oi := range orderItems {
				if err := r.CartItems().DeleteMatching(ctx, cart.ID, oi.ProductID, oi.Color, oi.Quantity); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		order.ID = orderID
		out = u.toOrderOutput(order, orderItems, images)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	//コミット後にイベント発行（失敗してもログだけ）
	u.publishEvent(ctx, orderEvent{
		Type:     "order_created",
		OrderID:  out.ID,
		Number:   out.Number,
		UserID:   out.UserID,
		Subtotal: out.Subtotal,
	})

	return out, nil
}

// CancelByUser はユーザー自身によるキャンセル。
// 注文作成からcancelWindow以内（境界を含む）だけ許可する。
func (u *OrderUsecase) CancelByUser(ctx context.Context, userID int64, orderID int64, reason string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
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
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		if o.Status != model.OrderStatusRequested {
			return NewHTTPError(http.StatusBadRequest, "Only requested orders can be canceled")
		}

		//境界は含む（ちょうど30分ならキャンセルできる）
		if u.clock.Now().Sub(o.CreatedAt) > u.cancelWindow {
			return NewHTTPError(http.StatusBadRequest, "cancellation window expired")
		}

		if err := restoreOrderStock(ctx, r, orderID); err != nil {
			return err
		}

		if err := r.Orders().UpdateStatusReason(ctx, orderID, model.OrderStatusCancelled, reason); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		from = o.Status
		return nil
	})

	if err != nil {
		return err
	}

	u.publishEvent(ctx, orderEvent{
		Type:    "order_status_changed",
		OrderID: orderID,
		From:    string(from),
		To:      string(model.OrderStatusCancelled),
	})

	return nil
}

// RequestReturn は配達済み注文の返品申請。
func (u *OrderUsecase) RequestReturn(ctx context.Context, userID int64, orderID int64, reason string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if strings.TrimSpace(reason) == "" {
		return NewHTTPError(http.StatusBadRequest, "reason required")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		if o.Status != model.OrderStatusDelivered {
			return NewHTTPError(http.StatusBadRequest, "Only delivered orders can be returned")
		}

		if err := r.Orders().UpdateStatusReason(ctx, orderID, model.OrderStatusReturnRequested, reason); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := notifyUser(ctx, r, userID, orderID, fmt.Sprintf("Return requested for order %s", o.Number), model.NotificationInfo); err != nil {
			return err
		}
		return notifyAdmins(ctx, r, orderID, fmt.Sprintf("Return requested for order %s by user %d", o.Number, userID), model.NotificationWarning)
	})

	if err != nil {
		return err
	}

	u.publishEvent(ctx, orderEvent{
		Type:    "order_status_changed",
		OrderID: orderID,
		From:    string(model.OrderStatusDelivered),
		To:      string(model.OrderStatusReturnRequested),
	})

	return nil
}

// DeleteByUser は本人による注文削除。
// 削除できるステータスは管理者削除と同じ。
func (u *OrderUsecase) DeleteByUser(ctx context.Context, userID int64, orderID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		return deleteOrder(ctx, r, o)
	})
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングはまずは固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, u.toOrderOutput(o, items, loadItemImages(ctx, r, items)))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = u.toOrderOutput(o, items, loadItemImages(ctx, r, items))
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ロールに応じたサーバー計算価格。クライアント提示価格は信用しない。
// 割引価格は0より大きいときだけ有効。
func unitPriceFor(p model.Product, role model.Role) int64 {
	if role.IsWholesale() {
		if p.WholesaleDiscountPrice > 0 {
			return p.WholesaleDiscountPrice
		}
		return p.WholesalePrice
	}
	if p.RetailDiscountPrice > 0 {
		return p.RetailDiscountPrice
	}
	return p.RetailPrice
}

// 宣言済みカラーに名前またはhexで一致するか
func matchesColor(p model.Product, color string) bool {
	for _, c := range p.Colors {
		if strings.EqualFold(c.Name, color) {
			return true
		}
		if c.Hex != "" && strings.EqualFold(c.Hex, color) {
			return true
		}
	}
	return false
}

// 注文明細ぶんの在庫を戻す（キャンセル・返品承認）
func restoreOrderStock(ctx context.Context, r repo.TxRepos, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}
	return nil
}

func notifyUser(ctx context.Context, r repo.TxRepos, userID int64, orderID int64, message string, typ model.NotificationType) error {
	n := model.Notification{
		UserID:  userID,
		OrderID: &orderID,
		Message: message,
		Type:    typ,
	}
	if err := r.Notifications().Create(ctx, n); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 管理者全員へ通知
func notifyAdmins(ctx context.Context, r repo.TxRepos, orderID int64, message string, typ model.NotificationType) error {
	admins, err := r.Users().ListAdmins(ctx)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	for _, a := range admins {
		if err := notifyUser(ctx, r, a.ID, orderID, message, typ); err != nil {
			return err
		}
	}
	return nil
}

// 削除ガードと在庫戻しの共通処理。
// 配達済み・発送済みの注文は在庫を戻さない（商品が手元に無いか輸送中のため）。
func deleteOrder(ctx context.Context, r repo.TxRepos, o model.Order) error {
	switch o.Status {
	case model.OrderStatusCancelled, model.OrderStatusReturnDisapproved,
		model.OrderStatusReturnApproved, model.OrderStatusDelivered:
		// OK
	default:
		return NewHTTPError(http.StatusForbidden, "order cannot be deleted in its current status")
	}

	if o.Status != model.OrderStatusDelivered && o.Status != model.OrderStatusShipped {
		if err := restoreOrderStock(ctx, r, o.ID); err != nil {
			return err
		}
	}

	if err := r.OrderItems().DeleteByOrderID(ctx, o.ID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if err := r.Orders().Delete(ctx, o.ID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 明細の商品画像を読み側で引き直す（削除済み商品は空のまま）
func loadItemImages(ctx context.Context, r repo.TxRepos, items []model.OrderItem) map[int64]string {
	images := make(map[int64]string, len(items))
	for _, it := range items {
		p, err := r.Products().FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		images[it.ProductID] = p.Image
	}
	return images
}

func (u *OrderUsecase) toOrderOutput(o model.Order, items []model.OrderItem, images map[int64]string) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Color:     it.Color,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Image:     imageURL(u.assetBaseURL, images[it.ProductID]),
		})
	}

	return OrderOutput{
		ID:       o.ID,
		Number:   o.Number,
		UserID:   o.UserID,
		Status:   string(o.Status),
		Subtotal: o.Subtotal,
		Reason:   o.Reason,
		Address: OrderAddressOutput{
			PostalCode: o.ShipPostalCode,
			Prefecture: o.ShipPrefecture,
			City:       o.ShipCity,
			Line1:      o.ShipLine1,
			Line2:      o.ShipLine2,
			Name:       o.ShipName,
			Phone:      o.ShipPhone,
		},
		CreatedAt: o.CreatedAt,
		Items:     outItems,
	}
}

// 保存しているのはファイル名だけなので、返すときに配信URLへ書き換える
func imageURL(base string, filename string) string {
	if filename == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + filename
}

type orderEvent struct {
	Type     string `json:"type"`
	OrderID  int64  `json:"order_id"`
	Number   string `json:"number,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Subtotal int64  `json:"subtotal,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

func (u *OrderUsecase) publishEvent(ctx context.Context, evt orderEvent) {
	publishOrderEvent(ctx, u.events, u.log, evt)
}

func publishOrderEvent(ctx context.Context, events EventPublisher, log *slog.Logger, evt orderEvent) {
	if events == nil {
		return
	}
	key := strconv.FormatInt(evt.OrderID, 10)
	if err := events.Publish(ctx, key, evt); err != nil && log != nil {
		log.Warn("order event publish failed", "type", evt.Type, "order_id", evt.OrderID, "error", err)
	}
}
