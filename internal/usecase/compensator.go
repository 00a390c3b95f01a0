package usecase

import (
	"context"
	"time"

	"checkout/internal/gateway"
	"checkout/internal/logging"
	"checkout/internal/metrics"

	"go.uber.org/zap"
)

const (
	actionCancelReservation = "cancel_reservation"
	actionCancelShipment    = "cancel_shipment"
)

// Compensator は成功済みのリモート操作を取り消す。
// 1回だけ試し、失敗してもエラーは返さない（ログとメトリクスに残す）。
type Compensator struct {
	stock    gateway.StockGateway
	shipping gateway.ShippingGateway
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewCompensator(
	stock gateway.StockGateway,
	shipping gateway.ShippingGateway,
	logger *zap.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
) *Compensator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Compensator{
		stock:    stock,
		shipping: shipping,
		logger:   logger,
		metrics:  m,
		timeout:  timeout,
	}
}

func (c *Compensator) CancelReservation(ctx context.Context, reservationID string, reason string) {
	if reservationID == "" {
		return
	}

	// 呼び出し元が切断しても取り消しは最後まで行う
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.stock.CancelReservation(cctx, reservationID, reason); err != nil {
		c.record(actionCancelReservation, metrics.ResultFailed)
		logging.Error(ctx, c.logger, "reservation cancel failed",
			zap.String("reservation_id", reservationID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	c.record(actionCancelReservation, metrics.ResultOK)
	logging.Info(ctx, c.logger, "reservation cancelled",
		zap.String("reservation_id", reservationID),
		zap.String("reason", reason),
	)
}

func (c *Compensator) CancelShipment(ctx context.Context, shipmentID string) {
	if shipmentID == "" {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.shipping.CancelShipment(cctx, shipmentID); err != nil {
		c.record(actionCancelShipment, metrics.ResultFailed)
		logging.Error(ctx, c.logger, "shipment cancel failed",
			zap.String("shipping_id", shipmentID),
			zap.Error(err),
		)
		return
	}

	c.record(actionCancelShipment, metrics.ResultOK)
	logging.Info(ctx, c.logger, "shipment cancelled", zap.String("shipping_id", shipmentID))
}

func (c *Compensator) record(action, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Compensations.WithLabelValues(action, result).Inc()
}
