// Package domain contains per-owner materializations of upstream products and
// content. The same upstream product id may exist independently under several
// owners; rows here are always owner-scoped.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product is the owner-local copy of an upstream product. Attributes are
// free-form key/value pairs (multi-entitlement, virt_limit, ...) that drive
// pool behavior. ContentIDs lists the upstream ids of content attached to
// this product.
type Product struct {
	ID         snowflake.ID                 `gorm:"primaryKey" json:"id"`
	OwnerID    snowflake.ID                 `gorm:"not null;index;uniqueIndex:idx_products_owner_upstream" json:"owner_id"`
	UpstreamID string                       `gorm:"type:text;not null;uniqueIndex:idx_products_owner_upstream" json:"upstream_id"`
	Name       string                       `gorm:"type:text;not null" json:"name"`
	Attributes datatypes.JSONMap            `gorm:"type:jsonb" json:"attributes"`
	ContentIDs datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"content_ids"`
	CreatedAt  time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// Content is the owner-local copy of an upstream content record.
// ModifiedProductIDs is the dependency edge: holding this content makes the
// listed products' content visible on other entitlements the consumer holds.
type Content struct {
	ID                 snowflake.ID                `gorm:"primaryKey" json:"id"`
	OwnerID            snowflake.ID                `gorm:"not null;index;uniqueIndex:idx_content_owner_upstream" json:"owner_id"`
	UpstreamID         string                      `gorm:"type:text;not null;uniqueIndex:idx_content_owner_upstream" json:"upstream_id"`
	Label              string                      `gorm:"type:text;not null" json:"label"`
	ContentURL         string                      `gorm:"type:text" json:"content_url"`
	ModifiedProductIDs datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"modified_product_ids"`
	CreatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Content) TableName() string { return "content" }

type Repository interface {
	ListProducts(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Product, error)
	ListContent(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Content, error)
	SaveProducts(ctx context.Context, db *gorm.DB, products []*Product) error
	SaveContent(ctx context.Context, db *gorm.DB, content []*Content) error
	DeleteProducts(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, upstreamIDs []string) error
	DeleteContent(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, upstreamIDs []string) error
}
