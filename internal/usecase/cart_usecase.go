package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"checkout/internal/domain/model"
	"checkout/internal/gateway"
	"checkout/internal/logging"
	repo "checkout/internal/repository"
	"checkout/internal/userlock"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartUsecase は /api/cart の業務ロジック。
// 価格は保存せず、表示のたびに在庫APIから取る。
type CartUsecase struct {
	tx     repo.TransactionManager
	stock  gateway.StockGateway
	locks  *userlock.Locker
	logger *zap.Logger
}

func NewCartUsecase(
	tx repo.TransactionManager,
	stock gateway.StockGateway,
	locks *userlock.Locker,
	logger *zap.Logger,
) *CartUsecase {
	return &CartUsecase{
		tx:     tx,
		stock:  stock,
		locks:  locks,
		logger: logger,
	}
}

type CartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available int64           `json:"available"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

// GetCart はカート取得（無ければ作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID string) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.buildCartResponse(ctx, userID)
}

// AddItem はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddItem(ctx context.Context, userID string, productID int64, qty int64) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, ValidationError("invalid product_id")
	}
	if qty < 1 {
		return CartResponse{}, ValidationError("invalid quantity")
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return CartResponse{}, InternalError()
	}
	defer unlock()

	a, err := u.availability(ctx, productID)
	if err != nil {
		return CartResponse{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}

		var existing int64
		item, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, productID)
		if err == nil {
			existing = item.Quantity
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		if existing+qty > a.Available {
			return ConflictError(fmt.Sprintf("insufficient stock for product %d", productID))
		}
		return r.CartItems().UpsertByCartAndProduct(ctx, cart.ID, productID, qty)
	})
	if err != nil {
		return CartResponse{}, u.localError(ctx, "add cart item failed", err)
	}

	return u.buildCartResponse(ctx, userID)
}

// SetQuantity は数量を上書きする。0以下なら行を消す。
func (u *CartUsecase) SetQuantity(ctx context.Context, userID string, productID int64, qty int64) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, ValidationError("invalid product_id")
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return CartResponse{}, InternalError()
	}
	defer unlock()

	item, err := u.findItem(ctx, userID, productID)
	if err != nil {
		return CartResponse{}, err
	}

	if qty <= 0 {
		err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.CartItems().DeleteByID(ctx, item.ID)
		})
		if err != nil {
			return CartResponse{}, u.localError(ctx, "remove cart item failed", err)
		}
		return u.buildCartResponse(ctx, userID)
	}

	a, err := u.availability(ctx, productID)
	if err != nil {
		return CartResponse{}, err
	}
	if qty > a.Available {
		return CartResponse{}, ConflictError(fmt.Sprintf("insufficient stock for product %d", productID))
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.CartItems().UpdateQuantity(ctx, item.ID, qty)
	})
	if err != nil {
		return CartResponse{}, u.localError(ctx, "update cart item failed", err)
	}

	return u.buildCartResponse(ctx, userID)
}

func (u *CartUsecase) RemoveItem(ctx context.Context, userID string, productID int64) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return CartResponse{}, ValidationError("invalid product_id")
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return CartResponse{}, InternalError()
	}
	defer unlock()

	item, err := u.findItem(ctx, userID, productID)
	if err != nil {
		return CartResponse{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.CartItems().DeleteByID(ctx, item.ID)
	})
	if err != nil {
		return CartResponse{}, u.localError(ctx, "remove cart item failed", err)
	}

	return u.buildCartResponse(ctx, userID)
}

// Clear はカートを空にする
func (u *CartUsecase) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	unlock, err := u.locks.Lock(ctx, userID)
	if err != nil {
		return InternalError()
	}
	defer unlock()

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		return r.Carts().Clear(ctx, cart.ID)
	})
	if err != nil {
		return u.localError(ctx, "clear cart failed", err)
	}
	return nil
}

// Lines は見積もり用に現在のカート明細を返す
func (u *CartUsecase) Lines(ctx context.Context, userID string) ([]gateway.Line, error) {
	items, err := u.listItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]gateway.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, gateway.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

func (u *CartUsecase) findItem(ctx context.Context, userID string, productID int64) (model.CartItem, error) {
	var item model.CartItem
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		it, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFoundError("item not in cart")
		}
		if err != nil {
			return err
		}
		item = it
		return nil
	})
	if err != nil {
		return model.CartItem{}, u.localError(ctx, "find cart item failed", err)
	}
	return item, nil
}

func (u *CartUsecase) listItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	var items []model.CartItem
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		items, err = r.CartItems().ListByCartID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, u.localError(ctx, "list cart items failed", err)
	}
	return items, nil
}

func (u *CartUsecase) availability(ctx context.Context, productID int64) (gateway.Availability, error) {
	a, err := u.stock.QueryAvailability(ctx, productID)
	if errors.Is(err, gateway.ErrNotFound) {
		return gateway.Availability{}, NotFoundError(fmt.Sprintf("product %d not found", productID))
	}
	if err != nil {
		return gateway.Availability{}, UpstreamErrorFrom(err)
	}
	return a, nil
}

// 在庫APIに無い商品は表示しない
func (u *CartUsecase) buildCartResponse(ctx context.Context, userID string) (CartResponse, error) {
	items, err := u.listItems(ctx, userID)
	if err != nil {
		return CartResponse{}, err
	}

	out := CartResponse{Items: make([]CartItemResponse, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		a, err := u.stock.QueryAvailability(ctx, it.ProductID)
		if errors.Is(err, gateway.ErrNotFound) {
			logging.Warn(ctx, u.logger, "cart item product not found in stock",
				zap.String("user_id", userID),
				zap.Int64("product_id", it.ProductID),
			)
			continue
		}
		if err != nil {
			return CartResponse{}, UpstreamErrorFrom(err)
		}

		subtotal := a.Price.Mul(decimal.NewFromInt(it.Quantity))
		out.Items = append(out.Items, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      a.Name,
			Price:     a.Price,
			Quantity:  it.Quantity,
			Subtotal:  subtotal,
			Available: a.Available,
		})
		out.Total = out.Total.Add(subtotal)
	}
	return out, nil
}

func (u *CartUsecase) localError(ctx context.Context, msg string, err error) error {
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	logging.Error(ctx, u.logger, msg, zap.Error(err))
	return InternalError()
}
