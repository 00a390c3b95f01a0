package repository

import (
	"context"

	"checkout/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 配送確定時に注文へ付ける情報
type ShipmentInfo struct {
	ShippingID    string
	Status        string
	TransportType string
	TotalCost     *decimal.Decimal
	Currency      *string
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (int64, error)
	// 新しい順（created_at desc, id desc）
	ListByUserID(ctx context.Context, userID string) ([]model.Order, error)
	// 他人の注文は ErrNotFound
	FindByUserAndID(ctx context.Context, userID string, orderID int64) (model.Order, error)
	AttachShipment(ctx context.Context, orderID int64, info ShipmentInfo) error
	// PENDINGのときだけCANCELEDにする。それ以外は ErrConflict
	TransitionToCanceled(ctx context.Context, orderID int64) error
}
