package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// 在庫APIから見た商品の現在の状態
type Availability struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Available int64
}

type ReserveRequest struct {
	CorrelationID string
	UserID        int64
	Lines         []Line
}

// 在庫API
type StockGateway interface {
	// 404は ErrNotFound
	QueryAvailability(ctx context.Context, productID int64) (Availability, error)
	// 予約IDを返す
	Reserve(ctx context.Context, req ReserveRequest) (string, error)
	CancelReservation(ctx context.Context, reservationID string, reason string) error
}
