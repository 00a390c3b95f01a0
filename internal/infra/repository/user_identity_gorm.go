package repository

import (
	"context"
	"errors"

	"checkout/internal/domain/model"
	repo "checkout/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserIdentityGormRepository struct {
	db *gorm.DB
}

func NewUserIdentityGormRepository(db *gorm.DB) *UserIdentityGormRepository {
	return &UserIdentityGormRepository{db: db}
}

func (r *UserIdentityGormRepository) FindBySubject(ctx context.Context, subject string) (model.UserIdentity, error) {
	var ui model.UserIdentity
	err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&ui).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.UserIdentity{}, repo.ErrNotFound
	}
	if err != nil {
		return model.UserIdentity{}, err
	}
	return ui, nil
}

// 無ければ採番。同時登録はsubjectのunique制約で片方が何もしない→読み直す
func (r *UserIdentityGormRepository) Resolve(ctx context.Context, subject string) (model.UserIdentity, error) {
	if subject == "" {
		return model.UserIdentity{}, errors.New("empty subject")
	}

	ui, err := r.FindBySubject(ctx, subject)
	if err == nil {
		return ui, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.UserIdentity{}, err
	}

	newUI := model.UserIdentity{Subject: subject}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&newUI).Error; err != nil {
		return model.UserIdentity{}, err
	}

	return r.FindBySubject(ctx, subject)
}
