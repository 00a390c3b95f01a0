package shippingapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout/internal/gateway"
	"checkout/internal/infra/upstream"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ gateway.ShippingGateway = (*Client)(nil)

var addr = gateway.Address{Street: "Av. Siempre Viva", Number: 742, PostalCode: "5500", LocalityName: "Mendoza"}

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	uc := upstream.New(upstream.Config{
		Service:         "shipping",
		BaseURL:         srv.URL + "/logistica/",
		Timeout:         time.Second,
		BreakerFailures: 10,
	}, nil, zap.NewNop(), nil)
	return New(uc)
}

func TestTransportMethods_PassThrough(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logistica/shipping/transport-methods", r.URL.Path)
		_, _ = w.Write([]byte(`{"transport_methods":[{"type":"road","name":"Camión"}]}`))
	})

	raw, err := c.TransportMethods(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"transport_methods":[{"type":"road","name":"Camión"}]}`, string(raw))
}

func TestQuoteCost(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		da := body["delivery_address"].(map[string]any)
		assert.Equal(t, "Mendoza", da["locality_name"])
		assert.Equal(t, float64(742), da["number"])
		products := body["products"].([]any)
		assert.Equal(t, float64(7), products[0].(map[string]any)["id"])

		_, _ = w.Write([]byte(`{"total_cost":"1500.50","currency":"ARS"}`))
	})

	q, err := c.QuoteCost(context.Background(), addr, []gateway.Line{{ProductID: 7, Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, q.TotalCost.Equal(decimal.RequireFromString("1500.50")))
	assert.Equal(t, "ARS", q.Currency)
}

func TestCreateShipment(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logistica/shipping", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(10), body["order_id"])
		assert.Equal(t, float64(3), body["user_id"])
		assert.Equal(t, "road", body["transport_type"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"shipping_id":55,"status":"created","total_cost":120,"currency":"ARS"}`))
	})

	sh, err := c.CreateShipment(context.Background(), gateway.CreateShipmentRequest{
		OrderID:       10,
		UserID:        3,
		Address:       addr,
		TransportType: "road",
		Lines:         []gateway.Line{{ProductID: 7, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "55", sh.ID)
	assert.Equal(t, "created", sh.Status)
	require.NotNil(t, sh.TotalCost)
	assert.True(t, sh.TotalCost.Equal(decimal.NewFromInt(120)))
	require.NotNil(t, sh.Currency)
	assert.Equal(t, "ARS", *sh.Currency)
}

func TestCreateShipment_DefaultsStatusAndUsesID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"S1"}`))
	})

	sh, err := c.CreateShipment(context.Background(), gateway.CreateShipmentRequest{OrderID: 1, UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, "S1", sh.ID)
	assert.Equal(t, "pending", sh.Status)
	assert.Nil(t, sh.TotalCost)
	assert.Nil(t, sh.Currency)
}

func TestCreateShipment_Rejected(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"invalid transport_type"}`))
	})

	_, err := c.CreateShipment(context.Background(), gateway.CreateShipmentRequest{OrderID: 1, UserID: 1, TransportType: "teleport"})
	ue, ok := gateway.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, ue.Status)
	assert.Equal(t, "invalid transport_type", ue.Message)
}

func TestCancelShipment(t *testing.T) {
	called := false
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/logistica/shipping/S1/cancel", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"cancelled"}`))
	})

	require.NoError(t, c.CancelShipment(context.Background(), "S1"))
	assert.True(t, called)
}

func TestGetShipment_NotFound(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetShipment(context.Background(), "S404")
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestGetShipment(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logistica/shipping/S1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"S1","status":"in_transit"}`))
	})

	raw, err := c.GetShipment(context.Background(), "S1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"S1","status":"in_transit"}`, string(raw))
}
