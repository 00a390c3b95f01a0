package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"
	"checkout/internal/logging"
	"checkout/internal/metrics"
	repo "checkout/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderSummary struct {
	ID                    int64           `json:"id"`
	Status                string          `json:"status"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	ShippingStatus        *string         `json:"shipping_status"`
	ShippingTransportType *string         `json:"shipping_transport_type"`
	ItemCount             int             `json:"item_count"`
	CreatedAt             time.Time       `json:"created_at"`
}

// 新しい順
func (u *CheckoutUsecase) ListOrders(ctx context.Context, userID string) ([]OrderSummary, error) {
	if userID == "" {
		return []OrderSummary{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderSummary

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, err := r.Orders().ListByUserID(ctx, userID)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		itemsByOrder, err := r.OrderItems().ListByOrderIDs(ctx, ids)
		if err != nil {
			return err
		}

		outs = make([]OrderSummary, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, OrderSummary{
				ID:                    o.ID,
				Status:                string(o.Status),
				TotalAmount:           o.TotalAmount,
				ShippingStatus:        o.ShippingStatus,
				ShippingTransportType: o.ShippingTransportType,
				ItemCount:             len(itemsByOrder[o.ID]),
				CreatedAt:             o.CreatedAt,
			})
		}
		return nil
	})

	if err != nil {
		logging.Error(ctx, u.logger, "list orders failed", zap.String("user_id", userID), zap.Error(err))
		return []OrderSummary{}, InternalError()
	}
	return outs, nil
}

func (u *CheckoutUsecase) GetOrder(ctx context.Context, userID string, orderID int64) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, ValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//他人の注文は「存在しない扱い」
		o, err := r.Orders().FindByUserAndID(ctx, userID, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return err
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, u.localError(ctx, "get order failed", err)
	}
	return out, nil
}

// TrackOrder は配送APIから最新の配送状況を取る
func (u *CheckoutUsecase) TrackOrder(ctx context.Context, userID string, orderID int64) (json.RawMessage, error) {
	o, err := u.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.ShippingID == nil || *o.ShippingID == "" {
		return nil, NotFoundError("order has no shipment")
	}

	raw, err := u.shipping.GetShipment(ctx, *o.ShippingID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, NotFoundError("shipment not found")
	}
	if err != nil {
		return nil, UpstreamErrorFrom(err)
	}
	return raw, nil
}

// Cancel はPENDINGの注文を取り消す。
// 予約・配送の取り消しは失敗しても続行し、注文は必ずCANCELEDになる。
func (u *CheckoutUsecase) Cancel(ctx context.Context, userID string, orderID int64) error {
	if userID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return ValidationError("invalid id")
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return InternalError()
	}
	defer unlock()

	var order model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByUserAndID(ctx, userID, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return u.localError(ctx, "cancel order failed", err)
	}

	if !order.Status.CanCancel() {
		u.countCancel(metrics.ResultRejected)
		return ConflictError("order cannot be cancelled in status " + string(order.Status))
	}

	if order.ReservationID != nil {
		u.compensator.CancelReservation(ctx, *order.ReservationID, "order cancelled by user")
	}
	if order.ShippingID != nil {
		u.compensator.CancelShipment(ctx, *order.ShippingID)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Orders().TransitionToCanceled(ctx, order.ID)
	})
	if errors.Is(err, repo.ErrConflict) {
		u.countCancel(metrics.ResultRejected)
		return ConflictError("order is no longer pending")
	}
	if err != nil {
		u.countCancel(metrics.ResultFailed)
		return u.localError(ctx, "cancel order failed", err)
	}

	u.countCancel(metrics.ResultOK)
	logging.Info(ctx, u.logger, "order cancelled",
		zap.String("user_id", userID),
		zap.Int64("order_id", order.ID),
	)
	return nil
}

// HTTPErrorはそのまま、それ以外はログに残して500
func (u *CheckoutUsecase) localError(ctx context.Context, msg string, err error) error {
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	logging.Error(ctx, u.logger, msg, zap.Error(err))
	return InternalError()
}

func (u *CheckoutUsecase) countCancel(result string) {
	if u.metrics == nil {
		return
	}
	u.metrics.Cancels.WithLabelValues(result).Inc()
}
