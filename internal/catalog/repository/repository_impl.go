package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) ListProducts(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]catalogdomain.Product, error) {
	var products []catalogdomain.Product
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&products).Error
	return products, err
}

func (r *repo) ListContent(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]catalogdomain.Content, error) {
	var content []catalogdomain.Content
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&content).Error
	return content, err
}

func (r *repo) SaveProducts(ctx context.Context, db *gorm.DB, products []*catalogdomain.Product) error {
	for _, product := range products {
		if err := db.WithContext(ctx).Save(product).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) SaveContent(ctx context.Context, db *gorm.DB, content []*catalogdomain.Content) error {
	for _, item := range content {
		if err := db.WithContext(ctx).Save(item).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteProducts(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, upstreamIDs []string) error {
	if len(upstreamIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("owner_id = ? AND upstream_id IN ?", ownerID, upstreamIDs).
		Delete(&catalogdomain.Product{}).Error
}

func (r *repo) DeleteContent(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, upstreamIDs []string) error {
	if len(upstreamIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("owner_id = ? AND upstream_id IN ?", ownerID, upstreamIDs).
		Delete(&catalogdomain.Content{}).Error
}
