// Package domain contains the owner (tenant) entity and its contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrOwnerNotFound = errors.New("owner_not_found")
	ErrInvalidKey    = errors.New("invalid_owner_key")
	ErrDuplicateKey  = errors.New("duplicate_owner_key")
)

// Owner is the tenant boundary. Every pool, product, content record and
// entitlement belongs to exactly one owner.
type Owner struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Key         string       `gorm:"type:text;not null;uniqueIndex" json:"key"`
	DisplayName string       `gorm:"type:text;not null" json:"display_name"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Owner) TableName() string { return "owners" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, owner *Owner) error
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Owner, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Owner, error)
	List(ctx context.Context, db *gorm.DB) ([]Owner, error)
}

type CreateRequest struct {
	Key         string
	DisplayName string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Owner, error)
	GetByKey(ctx context.Context, key string) (Owner, error)
	List(ctx context.Context) ([]Owner, error)
}
