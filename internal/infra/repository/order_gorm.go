package repository

import (
	"context"
	"errors"

	"checkout/internal/domain/model"
	repo "checkout/internal/repository"

	"gorm.io/gorm"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Find(&items).Error
	if err != nil {
		return []model.Order{}, err
	}
	return items, nil
}

func (r *OrderGormRepository) FindByUserAndID(ctx context.Context, userID string, orderID int64) (model.Order, error) {
	var o model.Order
	//他人の注文は「存在しない扱い」
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) AttachShipment(ctx context.Context, orderID int64, info repo.ShipmentInfo) error {
	values := map[string]any{
		"shipping_id":             info.ShippingID,
		"shipping_status":         info.Status,
		"shipping_transport_type": info.TransportType,
	}
	if info.TotalCost != nil {
		values["shipping_total_cost"] = *info.TotalCost
	}
	if info.Currency != nil {
		values["shipping_currency"] = *info.Currency
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(values)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) TransitionToCanceled(ctx context.Context, orderID int64) error {
	//PENDINGのときだけ更新（同時キャンセルは片方だけ成功する）
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(map[string]any{
			"status":          model.OrderStatusCanceled,
			"shipping_status": model.ShippingStatusCancelled,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}
