package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListPools(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Pool, error)
	FindPoolByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Pool, error)
	FindPoolByIDForUpdate(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Pool, error)
	SavePools(ctx context.Context, db *gorm.DB, pools []*Pool) error
	DeletePools(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) error

	InsertConsumer(ctx context.Context, db *gorm.DB, consumer *Consumer) error
	FindConsumerByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Consumer, error)

	ListEntitlementsByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Entitlement, error)
	ListEntitlementsByPool(ctx context.Context, db *gorm.DB, ownerID, poolID snowflake.ID) ([]Entitlement, error)
	ListEntitlementsByConsumer(ctx context.Context, db *gorm.DB, ownerID, consumerID snowflake.ID) ([]Entitlement, error)
	FindEntitlementByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Entitlement, error)
	InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	UpdateEntitlementCertificate(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	DeleteEntitlements(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) error
}
