package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"
	"checkout/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 確定済みの注文をDBへ直接作る
func (f *fixture) seedOrder(t *testing.T, userID string, status model.OrderStatus, createdAt time.Time) model.Order {
	t.Helper()

	o := model.Order{
		UserID:                userID,
		Status:                status,
		TotalAmount:           decimal.RequireFromString("25.00"),
		ReservationID:         strp("R1"),
		ShippingID:            strp("S1"),
		ShippingStatus:        strp("pending"),
		ShippingTransportType: strp("road"),
		CreatedAt:             createdAt,
		UpdatedAt:             createdAt,
	}
	require.NoError(t, f.db.Create(&o).Error)

	items := []model.OrderItem{
		{OrderID: o.ID, ProductID: 7, ProductName: "Mate", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
		{OrderID: o.ID, ProductID: 9, ProductName: "Bombilla", UnitPrice: decimal.NewFromInt(5), Quantity: 1},
	}
	require.NoError(t, f.db.Create(&items).Error)
	return o
}

func (f *fixture) reloadOrder(t *testing.T, id int64) model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, f.db.First(&o, id).Error)
	return o
}

func TestListOrders_NewestFirstAndOwnedOnly(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := f.seedOrder(t, "user-a", model.OrderStatusPending, base)
	newer := f.seedOrder(t, "user-a", model.OrderStatusShipped, base.Add(time.Hour))
	f.seedOrder(t, "user-b", model.OrderStatusPending, base.Add(2*time.Hour))

	outs, err := f.checkout.ListOrders(context.Background(), "user-a")
	require.NoError(t, err)

	require.Len(t, outs, 2)
	assert.Equal(t, newer.ID, outs[0].ID)
	assert.Equal(t, older.ID, outs[1].ID)
	assert.Equal(t, 2, outs[0].ItemCount)
	assert.Equal(t, string(model.OrderStatusShipped), outs[0].Status)
}

func TestListOrders_Empty(t *testing.T) {
	f := newFixture(t)

	outs, err := f.checkout.ListOrders(context.Background(), "user-a")
	require.NoError(t, err)
	assert.NotNil(t, outs)
	assert.Empty(t, outs)
}

func TestGetOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-b", model.OrderStatusPending, time.Now())

	_, err := f.checkout.GetOrder(context.Background(), "user-a", o.ID)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = f.checkout.GetOrder(context.Background(), "user-a", 0)
	assert.True(t, IsKind(err, KindValidation))
}

func TestTrackOrder(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-a", model.OrderStatusPending, time.Now())

	raw := json.RawMessage(`{"id":"S1","status":"in_transit"}`)
	f.shipping.On("GetShipment", mock.Anything, "S1").Return(raw, nil).Once()

	got, err := f.checkout.TrackOrder(context.Background(), "user-a", o.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(got))
}

func TestTrackOrder_NoShipment(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-a", model.OrderStatusPending, time.Now())
	require.NoError(t, f.db.Model(&model.Order{}).Where("id = ?", o.ID).Update("shipping_id", nil).Error)

	_, err := f.checkout.TrackOrder(context.Background(), "user-a", o.ID)
	assert.True(t, IsKind(err, KindNotFound))
	f.shipping.AssertNotCalled(t, "GetShipment", mock.Anything, mock.Anything)
}

func TestCancel_PendingOrderEvenWhenRemoteCancelsFail(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-a", model.OrderStatusPending, time.Now())

	f.stock.On("CancelReservation", mock.Anything, "R1", mock.Anything).Return(errors.New("stock down")).Once()
	f.shipping.On("CancelShipment", mock.Anything, "S1").Return(&gateway.UpstreamError{Service: "shipping", Status: 500}).Once()

	require.NoError(t, f.checkout.Cancel(context.Background(), "user-a", o.ID))

	got := f.reloadOrder(t, o.ID)
	assert.Equal(t, model.OrderStatusCanceled, got.Status)
	require.NotNil(t, got.ShippingStatus)
	assert.Equal(t, model.ShippingStatusCancelled, *got.ShippingStatus)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cancels.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compensations.WithLabelValues(actionCancelReservation, metrics.ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compensations.WithLabelValues(actionCancelShipment, metrics.ResultFailed)))
}

func TestCancel_SecondCancelConflictsWithoutRemoteCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, "user-a", model.OrderStatusPending, time.Now())

	f.stock.On("CancelReservation", mock.Anything, "R1", mock.Anything).Return(nil)
	f.shipping.On("CancelShipment", mock.Anything, "S1").Return(nil)

	require.NoError(t, f.checkout.Cancel(ctx, "user-a", o.ID))

	err := f.checkout.Cancel(ctx, "user-a", o.ID)
	assert.True(t, IsKind(err, KindConflict))

	f.stock.AssertNumberOfCalls(t, "CancelReservation", 1)
	f.shipping.AssertNumberOfCalls(t, "CancelShipment", 1)
}

func TestCancel_NonPendingIsConflictAndUnchanged(t *testing.T) {
	f := newFixture(t)

	for _, st := range []model.OrderStatus{model.OrderStatusShipped, model.OrderStatusDelivered} {
		t.Run(string(st), func(t *testing.T) {
			o := f.seedOrder(t, "user-a", st, time.Now())
			before := f.reloadOrder(t, o.ID)

			err := f.checkout.Cancel(context.Background(), "user-a", o.ID)

			he, ok := AsHTTPError(err)
			require.True(t, ok)
			assert.Equal(t, KindConflict, he.Kind)
			assert.Contains(t, he.Message, string(st))

			after := f.reloadOrder(t, o.ID)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, *before.ShippingStatus, *after.ShippingStatus)
		})
	}

	assert.Empty(t, f.stock.Calls)
	assert.Empty(t, f.shipping.Calls)
}

func TestCancel_OtherUsersOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-b", model.OrderStatusPending, time.Now())

	err := f.checkout.Cancel(context.Background(), "user-a", o.ID)

	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, model.OrderStatusPending, f.reloadOrder(t, o.ID).Status)
	assert.Empty(t, f.stock.Calls)
}

func TestCancel_WithoutShipmentOnlyCancelsReservation(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "user-a", model.OrderStatusPending, time.Now())
	require.NoError(t, f.db.Model(&model.Order{}).Where("id = ?", o.ID).Update("shipping_id", nil).Error)

	f.stock.On("CancelReservation", mock.Anything, "R1", mock.Anything).Return(nil).Once()

	require.NoError(t, f.checkout.Cancel(context.Background(), "user-a", o.ID))
	f.shipping.AssertNotCalled(t, "CancelShipment", mock.Anything, mock.Anything)
	assert.Equal(t, model.OrderStatusCanceled, f.reloadOrder(t, o.ID).Status)
}
