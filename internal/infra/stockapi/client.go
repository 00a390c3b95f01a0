package stockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"checkout/internal/gateway"
	"checkout/internal/infra/upstream"
)

// 在庫APIのHTTP実装
type Client struct {
	c *upstream.Client
}

func New(c *upstream.Client) *Client {
	return &Client{c: c}
}

// 在庫APIは precio/nombre、古い版は price/name を返す
type productResponse struct {
	ID              gateway.FlexibleID `json:"id"`
	Nombre          string             `json:"nombre"`
	Name            string             `json:"name"`
	Precio          json.RawMessage    `json:"precio"`
	Price           json.RawMessage    `json:"price"`
	StockDisponible int64              `json:"stockDisponible"`
}

type reserveLine struct {
	IDProducto int64 `json:"idProducto"`
	Cantidad   int64 `json:"cantidad"`
}

type reserveRequest struct {
	IDCompra  string        `json:"idCompra"`
	UsuarioID int64         `json:"usuarioId"`
	Productos []reserveLine `json:"productos"`
}

type reserveResponse struct {
	IDReserva gateway.FlexibleID `json:"idReserva"`
	ID        gateway.FlexibleID `json:"id"`
}

type cancelRequest struct {
	Motivo string `json:"motivo"`
}

func (s *Client) QueryAvailability(ctx context.Context, productID int64) (gateway.Availability, error) {
	var resp productResponse
	if err := s.c.Get(ctx, fmt.Sprintf("/productos/%d", productID), &resp); err != nil {
		return gateway.Availability{}, err
	}

	rawPrice := resp.Precio
	if len(rawPrice) == 0 {
		rawPrice = resp.Price
	}
	price, err := gateway.ParseMoney(rawPrice)
	if err != nil {
		return gateway.Availability{}, &gateway.UpstreamError{
			Service: "stock",
			Status:  http.StatusBadGateway,
			Message: "invalid price",
			Err:     err,
		}
	}

	name := resp.Nombre
	if name == "" {
		name = resp.Name
	}

	return gateway.Availability{
		ProductID: productID,
		Name:      name,
		Price:     price,
		Available: resp.StockDisponible,
	}, nil
}

func (s *Client) Reserve(ctx context.Context, req gateway.ReserveRequest) (string, error) {
	body := reserveRequest{
		IDCompra:  req.CorrelationID,
		UsuarioID: req.UserID,
		Productos: make([]reserveLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		body.Productos = append(body.Productos, reserveLine{IDProducto: l.ProductID, Cantidad: l.Quantity})
	}

	var resp reserveResponse
	if err := s.c.Post(ctx, "/reservas", body, &resp); err != nil {
		return "", err
	}

	id := gateway.FirstID(resp.IDReserva, resp.ID)
	if id == "" {
		return "", &gateway.UpstreamError{
			Service: "stock",
			Status:  http.StatusBadGateway,
			Message: "reservation id missing in response",
		}
	}
	return id, nil
}

func (s *Client) CancelReservation(ctx context.Context, reservationID string, reason string) error {
	path := fmt.Sprintf("/reservas/%s/cancelar", url.PathEscape(reservationID))
	return s.c.Post(ctx, path, cancelRequest{Motivo: reason}, nil)
}
