package shippingapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"checkout/internal/gateway"
	"checkout/internal/infra/upstream"
)

// 配送APIのHTTP実装
type Client struct {
	c *upstream.Client
}

func New(c *upstream.Client) *Client {
	return &Client{c: c}
}

type product struct {
	ID       int64 `json:"id"`
	Quantity int64 `json:"quantity"`
}

type costRequest struct {
	DeliveryAddress gateway.Address `json:"delivery_address"`
	Products        []product       `json:"products"`
}

type costResponse struct {
	TotalCost json.RawMessage `json:"total_cost"`
	Currency  string          `json:"currency"`
}

type createRequest struct {
	OrderID         int64           `json:"order_id"`
	UserID          int64           `json:"user_id"`
	DeliveryAddress gateway.Address `json:"delivery_address"`
	TransportType   string          `json:"transport_type"`
	Products        []product       `json:"products"`
}

type createResponse struct {
	ShippingID gateway.FlexibleID `json:"shipping_id"`
	ID         gateway.FlexibleID `json:"id"`
	Status     string             `json:"status"`
	TotalCost  json.RawMessage    `json:"total_cost"`
	Currency   string             `json:"currency"`
}

func toProducts(lines []gateway.Line) []product {
	out := make([]product, 0, len(lines))
	for _, l := range lines {
		out = append(out, product{ID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func (s *Client) TransportMethods(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.c.Get(ctx, "/shipping/transport-methods", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Client) QuoteCost(ctx context.Context, addr gateway.Address, lines []gateway.Line) (gateway.Quote, error) {
	var resp costResponse
	err := s.c.Post(ctx, "/shipping/cost", costRequest{
		DeliveryAddress: addr,
		Products:        toProducts(lines),
	}, &resp)
	if err != nil {
		return gateway.Quote{}, err
	}

	cost, err := gateway.ParseMoney(resp.TotalCost)
	if err != nil {
		return gateway.Quote{}, &gateway.UpstreamError{
			Service: "shipping",
			Status:  http.StatusBadGateway,
			Message: "invalid total_cost",
			Err:     err,
		}
	}
	return gateway.Quote{TotalCost: cost, Currency: resp.Currency}, nil
}

func (s *Client) CreateShipment(ctx context.Context, req gateway.CreateShipmentRequest) (gateway.Shipment, error) {
	var resp createResponse
	err := s.c.Post(ctx, "/shipping", createRequest{
		OrderID:         req.OrderID,
		UserID:          req.UserID,
		DeliveryAddress: req.Address,
		TransportType:   req.TransportType,
		Products:        toProducts(req.Lines),
	}, &resp)
	if err != nil {
		return gateway.Shipment{}, err
	}

	id := gateway.FirstID(resp.ShippingID, resp.ID)
	if id == "" {
		return gateway.Shipment{}, &gateway.UpstreamError{
			Service: "shipping",
			Status:  http.StatusBadGateway,
			Message: "shipping id missing in response",
		}
	}

	sh := gateway.Shipment{ID: id, Status: resp.Status}
	if sh.Status == "" {
		sh.Status = "pending"
	}

	//費用は返ってきたときだけ保存
	if len(resp.TotalCost) > 0 && string(resp.TotalCost) != "null" {
		if cost, err := gateway.ParseMoney(resp.TotalCost); err == nil {
			sh.TotalCost = &cost
		}
	}
	if resp.Currency != "" {
		cur := resp.Currency
		sh.Currency = &cur
	}
	return sh, nil
}

func (s *Client) CancelShipment(ctx context.Context, shipmentID string) error {
	return s.c.Post(ctx, fmt.Sprintf("/shipping/%s/cancel", url.PathEscape(shipmentID)), nil, nil)
}

func (s *Client) GetShipment(ctx context.Context, shipmentID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.c.Get(ctx, fmt.Sprintf("/shipping/%s", url.PathEscape(shipmentID)), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

