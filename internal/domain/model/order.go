package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// キャンセル時に shipping_status に入れる値
const ShippingStatusCancelled = "cancelled"

// 注文。予約と配送の両方が成功したときだけ作られる
type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string          `gorm:"type:varchar(255);not null;index" json:"user_id"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_amount"`

	//在庫APIの予約ID
	ReservationID *string `gorm:"type:varchar(64);index" json:"reservation_id"`

	//配送APIの情報（配送確定までnull）
	ShippingID            *string          `gorm:"type:varchar(64);index" json:"shipping_id"`
	ShippingStatus        *string          `gorm:"type:varchar(50)" json:"shipping_status"`
	ShippingTransportType *string          `gorm:"type:varchar(50)" json:"shipping_transport_type"`
	ShippingTotalCost     *decimal.Decimal `gorm:"type:numeric(10,2)" json:"shipping_total_cost"`
	ShippingCurrency      *string          `gorm:"type:varchar(10)" json:"shipping_currency"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusPending
}
