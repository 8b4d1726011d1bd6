package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
)

type repo struct{}

func Provide() ownerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, owner *ownerdomain.Owner) error {
	return db.WithContext(ctx).Create(owner).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*ownerdomain.Owner, error) {
	var owner ownerdomain.Owner
	err := db.WithContext(ctx).Where("key = ?", key).First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ownerdomain.Owner, error) {
	var owner ownerdomain.Owner
	err := db.WithContext(ctx).Where("id = ?", id).First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]ownerdomain.Owner, error) {
	var owners []ownerdomain.Owner
	err := db.WithContext(ctx).Order("created_at asc").Find(&owners).Error
	return owners, err
}
