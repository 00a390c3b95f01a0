package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"
	"checkout/internal/infra/db"
	infraRepo "checkout/internal/infra/repository"
	"checkout/internal/metrics"
	repo "checkout/internal/repository"
	"checkout/internal/userlock"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =====================
// Gateway mocks
// =====================

type StockMock struct{ mock.Mock }

func (m *StockMock) QueryAvailability(ctx context.Context, productID int64) (gateway.Availability, error) {
	args := m.Called(ctx, productID)
	a, _ := args.Get(0).(gateway.Availability)
	return a, args.Error(1)
}

func (m *StockMock) Reserve(ctx context.Context, req gateway.ReserveRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *StockMock) CancelReservation(ctx context.Context, reservationID string, reason string) error {
	args := m.Called(ctx, reservationID, reason)
	return args.Error(0)
}

type ShippingMock struct{ mock.Mock }

func (m *ShippingMock) TransportMethods(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *ShippingMock) QuoteCost(ctx context.Context, addr gateway.Address, lines []gateway.Line) (gateway.Quote, error) {
	args := m.Called(ctx, addr, lines)
	q, _ := args.Get(0).(gateway.Quote)
	return q, args.Error(1)
}

func (m *ShippingMock) CreateShipment(ctx context.Context, req gateway.CreateShipmentRequest) (gateway.Shipment, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(gateway.Shipment)
	return s, args.Error(1)
}

func (m *ShippingMock) CancelShipment(ctx context.Context, shipmentID string) error {
	args := m.Called(ctx, shipmentID)
	return args.Error(0)
}

func (m *ShippingMock) GetShipment(ctx context.Context, shipmentID string) (json.RawMessage, error) {
	args := m.Called(ctx, shipmentID)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type fixedID struct{ id string }

func (g fixedID) NewID() string { return g.id }

// =====================
// TxManager（commitだけ失敗させる）
// =====================

// failOn回目のWithinTxだけ、fnを最後まで実行したあとエラーでrollbackする
type failingCommitTx struct {
	inner  repo.TransactionManager
	failOn int
	calls  int
}

var errCommit = errors.New("commit failed")

func (m *failingCommitTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.calls++
	n := m.calls
	return m.inner.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := fn(r); err != nil {
			return err
		}
		if n == m.failOn {
			return errCommit
		}
		return nil
	})
}

// =====================
// fixture
// =====================

type fixture struct {
	db       *gorm.DB
	tx       repo.TransactionManager
	stock    *StockMock
	shipping *ShippingMock
	metrics  *metrics.Metrics
	locks    *userlock.Locker
	checkout *CheckoutUsecase
	carts    *CartUsecase
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// :memory: は接続ごとに別DBになるので1本に固定
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(gdb))
	return gdb
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb := newTestDB(t)
	f := &fixture{
		db:       gdb,
		tx:       infraRepo.NewTxManagerGorm(gdb),
		stock:    &StockMock{},
		shipping: &ShippingMock{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		locks:    userlock.New(),
	}
	f.build(f.tx)
	return f
}

func (f *fixture) build(tx repo.TransactionManager) {
	logger := zap.NewNop()
	comp := NewCompensator(f.stock, f.shipping, logger, f.metrics, 0)
	f.checkout = NewCheckoutUsecase(tx, f.stock, f.shipping, comp, f.locks, fixedID{id: "corr-1"}, logger, f.metrics)
	f.carts = NewCartUsecase(tx, f.stock, f.locks, logger)
}

// カートに直接入れる（在庫チェックなし）
func (f *fixture) seedCart(t *testing.T, userID string, items ...model.CartItem) model.Cart {
	t.Helper()
	ctx := context.Background()
	r := infraRepo.NewCartGormRepository(f.db)

	cart, err := r.GetOrCreateByUserID(ctx, userID)
	require.NoError(t, err)
	for _, it := range items {
		require.NoError(t, r.UpsertByCartAndProduct(ctx, cart.ID, it.ProductID, it.Quantity))
	}
	return cart
}

func (f *fixture) cartItems(t *testing.T, userID string) []model.CartItem {
	t.Helper()
	ctx := context.Background()
	r := infraRepo.NewCartGormRepository(f.db)

	cart, err := r.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	items, err := r.ListByCartID(ctx, cart.ID)
	require.NoError(t, err)
	return items
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&n).Error)
	return n
}

func avail(id int64, name, price string, available int64) gateway.Availability {
	return gateway.Availability{
		ProductID: id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Available: available,
	}
}

func strp(s string) *string { return &s }

var testAddress = gateway.Address{
	Street:       "San Martín",
	Number:       1200,
	PostalCode:   "5500",
	LocalityName: "Mendoza",
}
