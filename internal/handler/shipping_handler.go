package handler

import (
	"net/http"

	"checkout/internal/gateway"
	"checkout/internal/middleware"
	"checkout/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/shipping のHTTP
type ShippingHandler struct {
	uc *usecase.ShippingUsecase
}

func NewShippingHandler(uc *usecase.ShippingUsecase) *ShippingHandler {
	return &ShippingHandler{uc: uc}
}

type QuoteProduct struct {
	ID       int64 `json:"id" validate:"gt=0"`
	Quantity int64 `json:"quantity" validate:"gte=1"`
}

type QuoteRequest struct {
	DeliveryAddress AddressRequest `json:"delivery_address"`
	// 空なら現在のカートで見積もる
	Products []QuoteProduct `json:"products" validate:"omitempty,dive"`
}

func (h *ShippingHandler) RegisterRoutes(g *echo.Group) {
	read := middleware.RequireScope(middleware.ScopeRead)

	g.GET("/shipping/transport-methods", h.transportMethods, read)
	g.POST("/shipping/cost", h.cost, read)
}

func (h *ShippingHandler) transportMethods(c echo.Context) error {
	raw, err := h.uc.TransportMethods(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *ShippingHandler) cost(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req QuoteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	lines := make([]gateway.Line, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, gateway.Line{ProductID: p.ID, Quantity: p.Quantity})
	}

	q, err := h.uc.Quote(c.Request().Context(), userID, usecase.QuoteInput{
		Address: req.DeliveryAddress.toGateway(),
		Lines:   lines,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}
