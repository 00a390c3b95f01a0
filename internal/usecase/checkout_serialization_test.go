package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckout_ConcurrentSameUserCommitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCart(t, "user-a", model.CartItem{ProductID: 7, Quantity: 2}, model.CartItem{ProductID: 9, Quantity: 1})
	f.stockForScenario()
	//予約中にもう一方が割り込める時間を作る
	f.stock.On("Reserve", mock.Anything, mock.Anything).Return("R1", nil).Run(func(mock.Arguments) {
		time.Sleep(50 * time.Millisecond)
	})
	f.shipping.On("CreateShipment", mock.Anything, mock.Anything).Return(gateway.Shipment{ID: "S1", Status: "pending"}, nil)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(ctx, "user-a", checkoutInput())
		}(i)
	}
	wg.Wait()

	var ok, empty int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case IsKind(err, KindValidation):
			empty++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, empty)

	assert.Equal(t, int64(1), f.countOrders(t))
	assert.Empty(t, f.cartItems(t, "user-a"))
	f.stock.AssertNumberOfCalls(t, "Reserve", 1)
	f.shipping.AssertNumberOfCalls(t, "CreateShipment", 1)
	f.stock.AssertNotCalled(t, "CancelReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_AddItemDuringCheckoutStaysInCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCart(t, "user-a", model.CartItem{ProductID: 7, Quantity: 2})
	f.stockForScenario()

	reserving := make(chan struct{})
	var once sync.Once
	f.stock.On("Reserve", mock.Anything, mock.Anything).Return("R1", nil).Run(func(mock.Arguments) {
		once.Do(func() { close(reserving) })
		time.Sleep(50 * time.Millisecond)
	})
	f.shipping.On("CreateShipment", mock.Anything, mock.Anything).Return(gateway.Shipment{ID: "S1", Status: "pending"}, nil)

	var (
		wg     sync.WaitGroup
		out    OrderOutput
		coErr  error
		addErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out, coErr = f.checkout.Checkout(ctx, "user-a", checkoutInput())
	}()
	go func() {
		defer wg.Done()
		//チェックアウトがロックを持っている間に追加する
		<-reserving
		_, addErr = f.carts.AddItem(ctx, "user-a", 9, 1)
	}()
	wg.Wait()

	require.NoError(t, coErr)
	require.NoError(t, addErr)

	//注文には追加前の行だけ
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(7), out.Items[0].ProductID)

	//追加した行はクリアされずカートに残る
	items := f.cartItems(t, "user-a")
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].ProductID)
	assert.Equal(t, int64(1), items[0].Quantity)
}
