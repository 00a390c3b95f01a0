package repository

import (
	"context"

	"checkout/internal/domain/model"
)

// subject -> 数値ID の対応表
type UserIdentityRepository interface {
	FindBySubject(ctx context.Context, subject string) (model.UserIdentity, error)
	// 無ければ採番して登録する
	Resolve(ctx context.Context, subject string) (model.UserIdentity, error)
}
