package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"
	"checkout/internal/logging"
	"checkout/internal/metrics"
	repo "checkout/internal/repository"
	"checkout/internal/userlock"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type IDGenerator interface {
	NewID() string
}

// CheckoutUsecase は在庫予約→注文作成→配送作成をsagaとして実行する。
// 注文のキャンセル・履歴もここで扱う。
type CheckoutUsecase struct {
	tx          repo.TransactionManager
	stock       gateway.StockGateway
	shipping    gateway.ShippingGateway
	compensator *Compensator
	locks       *userlock.Locker
	idGen       IDGenerator
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	stock gateway.StockGateway,
	shipping gateway.ShippingGateway,
	compensator *Compensator,
	locks *userlock.Locker,
	idGen IDGenerator,
	logger *zap.Logger,
	m *metrics.Metrics,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:          tx,
		stock:       stock,
		shipping:    shipping,
		compensator: compensator,
		locks:       locks,
		idGen:       idGen,
		logger:      logger,
		metrics:     m,
	}
}

type CheckoutInput struct {
	Address       gateway.Address
	TransportType string
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID                    int64             `json:"id"`
	UserID                string            `json:"user_id"`
	Status                string            `json:"status"`
	TotalAmount           decimal.Decimal   `json:"total_amount"`
	ReservationID         *string           `json:"reservation_id"`
	ShippingID            *string           `json:"shipping_id"`
	ShippingStatus        *string           `json:"shipping_status"`
	ShippingTransportType *string           `json:"shipping_transport_type"`
	ShippingTotalCost     *decimal.Decimal  `json:"shipping_total_cost"`
	ShippingCurrency      *string           `json:"shipping_currency"`
	CreatedAt             time.Time         `json:"created_at"`
	Items                 []OrderItemOutput `json:"items"`
}

// 在庫APIから取った価格つきの明細
type pricedLine struct {
	item  model.CartItem
	avail gateway.Availability
}

func validateAddress(a gateway.Address) error {
	if strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.PostalCode) == "" || strings.TrimSpace(a.LocalityName) == "" {
		return ValidationError("invalid delivery_address")
	}
	if a.Number < 0 {
		return ValidationError("invalid delivery_address")
	}
	return nil
}

// transport_type の値そのものは配送APIが判定する
func (in CheckoutInput) validate() error {
	if err := validateAddress(in.Address); err != nil {
		return err
	}
	if strings.TrimSpace(in.TransportType) == "" {
		return ValidationError("transport_type is required")
	}
	return nil
}

// Checkout はカートの中身で注文を確定する。
// 予約と配送の両方が成功したときだけ注文がcommitされ、カートが空になる。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID string, in CheckoutInput) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		u.count(metrics.ResultRejected)
		return OrderOutput{}, err
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return OrderOutput{}, InternalError()
	}
	defer unlock()

	//カート読み込み
	cart, items, err := u.loadCart(ctx, userID)
	if err != nil {
		u.count(metrics.ResultRejected)
		return OrderOutput{}, err
	}

	//最新の在庫と価格。足りなければ予約しない
	lines, err := u.priceLines(ctx, items)
	if err != nil {
		u.count(metrics.ResultRejected)
		return OrderOutput{}, err
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.avail.Price.Mul(decimal.NewFromInt(l.item.Quantity)))
	}

	//在庫・配送APIに渡す数値ID
	var numericID int64
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ident, err := r.Identities().Resolve(ctx, userID)
		if err != nil {
			return err
		}
		numericID = ident.ID
		return nil
	})
	if err != nil {
		logging.Error(ctx, u.logger, "resolve user identity failed", zap.String("user_id", userID), zap.Error(err))
		u.count(metrics.ResultRejected)
		return OrderOutput{}, InternalError()
	}

	gwLines := make([]gateway.Line, 0, len(lines))
	for _, l := range lines {
		gwLines = append(gwLines, gateway.Line{ProductID: l.item.ProductID, Quantity: l.item.Quantity})
	}

	var sg saga

	//在庫予約
	correlationID := u.idGen.NewID()
	reservationID, err := u.stock.Reserve(ctx, gateway.ReserveRequest{
		CorrelationID: correlationID,
		UserID:        numericID,
		Lines:         gwLines,
	})
	if err != nil {
		logging.Warn(ctx, u.logger, "reservation failed",
			zap.String("user_id", userID),
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		u.count(metrics.ResultRejected)
		return OrderOutput{}, UpstreamErrorFrom(err)
	}
	sg.push(actionCancelReservation, func(ctx context.Context, reason string) {
		u.compensator.CancelReservation(ctx, reservationID, reason)
	})

	var (
		out     OrderOutput
		shipErr error
	)

	//注文作成→配送作成→配送情報を付けてcommit
	txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := time.Now()
		order := model.Order{
			UserID:        userID,
			Status:        model.OrderStatusPending,
			TotalAmount:   total,
			ReservationID: &reservationID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID

		//価格は在庫APIから取った時点のもの
		orderItems := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			orderItems = append(orderItems, model.OrderItem{
				ProductID:   l.item.ProductID,
				ProductName: l.avail.Name,
				UnitPrice:   l.avail.Price,
				Quantity:    l.item.Quantity,
			})
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return err
		}

		shipment, err := u.shipping.CreateShipment(ctx, gateway.CreateShipmentRequest{
			OrderID:       orderID,
			UserID:        numericID,
			Address:       in.Address,
			TransportType: in.TransportType,
			Lines:         gwLines,
		})
		if err != nil {
			shipErr = err
			return err
		}
		sg.push(actionCancelShipment, func(ctx context.Context, _ string) {
			u.compensator.CancelShipment(ctx, shipment.ID)
		})

		info := repo.ShipmentInfo{
			ShippingID:    shipment.ID,
			Status:        shipment.Status,
			TransportType: in.TransportType,
			TotalCost:     shipment.TotalCost,
			Currency:      shipment.Currency,
		}
		if err := r.Orders().AttachShipment(ctx, orderID, info); err != nil {
			return err
		}

		//注文と同じTxでカートを空にする
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return err
		}

		order.ShippingID = &shipment.ID
		order.ShippingStatus = &shipment.Status
		order.ShippingTransportType = &in.TransportType
		order.ShippingTotalCost = shipment.TotalCost
		order.ShippingCurrency = shipment.Currency

		out = toOrderOutput(order, orderItems)
		return nil
	})

	if txErr != nil {
		reason := "order commit failed"
		if shipErr != nil {
			reason = "shipment creation failed"
		}
		undone := sg.unwind(ctx, reason)

		u.count(metrics.ResultAborted)
		logging.Warn(ctx, u.logger, "checkout aborted",
			zap.String("user_id", userID),
			zap.String("reservation_id", reservationID),
			zap.String("reason", reason),
			zap.Strings("compensated", undone),
			zap.Error(txErr),
		)

		if shipErr != nil {
			return OrderOutput{}, UpstreamErrorFrom(shipErr)
		}
		return OrderOutput{}, InternalError()
	}

	u.count(metrics.ResultCommitted)
	logging.Info(ctx, u.logger, "checkout committed",
		zap.String("user_id", userID),
		zap.Int64("order_id", out.ID),
		zap.String("reservation_id", reservationID),
		zap.Stringp("shipping_id", out.ShippingID),
		zap.String("total_amount", out.TotalAmount.StringFixed(2)),
	)
	return out, nil
}

func (u *CheckoutUsecase) loadCart(ctx context.Context, userID string) (model.Cart, []model.CartItem, error) {
	var (
		cart  model.Cart
		items []model.CartItem
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Carts().FindByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationError("cart is empty")
		}
		if err != nil {
			return err
		}

		list, err := r.CartItems().ListByCartID(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return ValidationError("cart is empty")
		}

		cart = c
		items = list
		return nil
	})
	if err != nil {
		if he, ok := AsHTTPError(err); ok {
			return model.Cart{}, nil, he
		}
		logging.Error(ctx, u.logger, "load cart failed", zap.String("user_id", userID), zap.Error(err))
		return model.Cart{}, nil, InternalError()
	}
	return cart, items, nil
}

// 1行でも在庫不足ならConflict（予約は出さない）
func (u *CheckoutUsecase) priceLines(ctx context.Context, items []model.CartItem) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(items))
	for _, it := range items {
		a, err := u.stock.QueryAvailability(ctx, it.ProductID)
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, NotFoundError(fmt.Sprintf("product %d not found", it.ProductID))
		}
		if err != nil {
			return nil, UpstreamErrorFrom(err)
		}
		if a.Available < it.Quantity {
			return nil, ConflictError(fmt.Sprintf("insufficient stock for product %d", it.ProductID))
		}
		// numeric(10,2) に合わせて丸め、保存値と合計を一致させる
		a.Price = a.Price.Round(2)
		lines = append(lines, pricedLine{item: it, avail: a})
	}
	return lines, nil
}

func (u *CheckoutUsecase) count(result string) {
	if u.metrics == nil {
		return
	}
	u.metrics.Checkouts.WithLabelValues(result).Inc()
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.LineTotal(),
		})
	}

	return OrderOutput{
		ID:                    o.ID,
		UserID:                o.UserID,
		Status:                string(o.Status),
		TotalAmount:           o.TotalAmount,
		ReservationID:         o.ReservationID,
		ShippingID:            o.ShippingID,
		ShippingStatus:        o.ShippingStatus,
		ShippingTransportType: o.ShippingTransportType,
		ShippingTotalCost:     o.ShippingTotalCost,
		ShippingCurrency:      o.ShippingCurrency,
		CreatedAt:             o.CreatedAt,
		Items:                 outItems,
	}
}
