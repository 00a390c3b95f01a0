package db

import (
	"checkout/internal/domain/model"

	"gorm.io/gorm"
)

// テーブル作成（起動時）
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.UserIdentity{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
	)
}
