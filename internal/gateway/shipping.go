package gateway

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

type Quote struct {
	TotalCost decimal.Decimal `json:"total_cost"`
	Currency  string          `json:"currency"`
}

type CreateShipmentRequest struct {
	OrderID       int64
	UserID        int64
	Address       Address
	TransportType string
	Lines         []Line
}

type Shipment struct {
	ID     string
	Status string
	// 配送APIが返したときだけ入る
	TotalCost *decimal.Decimal
	Currency  *string
}

// 配送API
type ShippingGateway interface {
	// 配送APIの応答をそのまま返す
	TransportMethods(ctx context.Context) (json.RawMessage, error)
	QuoteCost(ctx context.Context, addr Address, lines []Line) (Quote, error)
	CreateShipment(ctx context.Context, req CreateShipmentRequest) (Shipment, error)
	CancelShipment(ctx context.Context, shipmentID string) error
	// 404は ErrNotFound
	GetShipment(ctx context.Context, shipmentID string) (json.RawMessage, error)
}
