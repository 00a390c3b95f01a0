package usecase

import (
	"context"
	"encoding/json"

	"checkout/internal/gateway"
	"checkout/internal/logging"

	"go.uber.org/zap"
)

type TransportMethodCache interface {
	// 無ければ ok=false
	Get(ctx context.Context) (raw json.RawMessage, ok bool, err error)
	Set(ctx context.Context, raw json.RawMessage) error
}

// ShippingUsecase は配送手段の一覧と送料見積もり
type ShippingUsecase struct {
	shipping gateway.ShippingGateway
	carts    *CartUsecase
	cache    TransportMethodCache
	logger   *zap.Logger
}

// cacheはnil可（毎回配送APIに聞く）
func NewShippingUsecase(shipping gateway.ShippingGateway, carts *CartUsecase, c TransportMethodCache, logger *zap.Logger) *ShippingUsecase {
	return &ShippingUsecase{
		shipping: shipping,
		carts:    carts,
		cache:    c,
		logger:   logger,
	}
}

type QuoteInput struct {
	Address gateway.Address
	// 空なら現在のカート
	Lines []gateway.Line
}

// キャッシュの失敗は無視して配送APIに聞く
func (u *ShippingUsecase) TransportMethods(ctx context.Context) (json.RawMessage, error) {
	if u.cache != nil {
		raw, ok, err := u.cache.Get(ctx)
		if err != nil {
			logging.Warn(ctx, u.logger, "transport methods cache read failed", zap.Error(err))
		} else if ok {
			return raw, nil
		}
	}

	raw, err := u.shipping.TransportMethods(ctx)
	if err != nil {
		return nil, UpstreamErrorFrom(err)
	}

	if u.cache != nil {
		if err := u.cache.Set(ctx, raw); err != nil {
			logging.Warn(ctx, u.logger, "transport methods cache write failed", zap.Error(err))
		}
	}
	return raw, nil
}

func (u *ShippingUsecase) Quote(ctx context.Context, userID string, in QuoteInput) (gateway.Quote, error) {
	if err := validateAddress(in.Address); err != nil {
		return gateway.Quote{}, err
	}

	lines := in.Lines
	for _, l := range lines {
		if l.ProductID <= 0 || l.Quantity < 1 {
			return gateway.Quote{}, ValidationError("invalid products")
		}
	}
	if len(lines) == 0 {
		cartLines, err := u.carts.Lines(ctx, userID)
		if err != nil {
			return gateway.Quote{}, err
		}
		lines = cartLines
	}
	if len(lines) == 0 {
		return gateway.Quote{}, ValidationError("cart is empty")
	}

	q, err := u.shipping.QuoteCost(ctx, in.Address, lines)
	if err != nil {
		return gateway.Quote{}, UpstreamErrorFrom(err)
	}
	return q, nil
}
