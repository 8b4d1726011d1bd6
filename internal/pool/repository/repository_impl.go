package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

type repo struct{}

func Provide() pooldomain.Repository {
	return &repo{}
}

func (r *repo) ListPools(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]pooldomain.Pool, error) {
	var pools []pooldomain.Pool
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at asc").Find(&pools).Error
	return pools, err
}

func (r *repo) FindPoolByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*pooldomain.Pool, error) {
	var pool pooldomain.Pool
	err := db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *repo) FindPoolByIDForUpdate(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*pooldomain.Pool, error) {
	var pool pooldomain.Pool
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *repo) SavePools(ctx context.Context, db *gorm.DB, pools []*pooldomain.Pool) error {
	for _, pool := range pools {
		if err := db.WithContext(ctx).Save(pool).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeletePools(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&pooldomain.Pool{}).Error
}

func (r *repo) InsertConsumer(ctx context.Context, db *gorm.DB, consumer *pooldomain.Consumer) error {
	return db.WithContext(ctx).Create(consumer).Error
}

func (r *repo) FindConsumerByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*pooldomain.Consumer, error) {
	var consumer pooldomain.Consumer
	err := db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&consumer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &consumer, nil
}

func (r *repo) ListEntitlementsByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]pooldomain.Entitlement, error) {
	var entitlements []pooldomain.Entitlement
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&entitlements).Error
	return entitlements, err
}

func (r *repo) ListEntitlementsByPool(ctx context.Context, db *gorm.DB, ownerID, poolID snowflake.ID) ([]pooldomain.Entitlement, error) {
	var entitlements []pooldomain.Entitlement
	err := db.WithContext(ctx).Where("owner_id = ? AND pool_id = ?", ownerID, poolID).Find(&entitlements).Error
	return entitlements, err
}

func (r *repo) ListEntitlementsByConsumer(ctx context.Context, db *gorm.DB, ownerID, consumerID snowflake.ID) ([]pooldomain.Entitlement, error) {
	var entitlements []pooldomain.Entitlement
	err := db.WithContext(ctx).Where("owner_id = ? AND consumer_id = ?", ownerID, consumerID).Find(&entitlements).Error
	return entitlements, err
}

func (r *repo) FindEntitlementByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*pooldomain.Entitlement, error) {
	var entitlement pooldomain.Entitlement
	err := db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&entitlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entitlement, nil
}

func (r *repo) InsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *pooldomain.Entitlement) error {
	return db.WithContext(ctx).Create(entitlement).Error
}

func (r *repo) UpdateEntitlementCertificate(ctx context.Context, db *gorm.DB, entitlement *pooldomain.Entitlement) error {
	return db.WithContext(ctx).Model(&pooldomain.Entitlement{}).
		Where("owner_id = ? AND id = ?", entitlement.OwnerID, entitlement.ID).
		Updates(map[string]any{
			"cert_serial":  entitlement.CertSerial,
			"cert_bytes":   entitlement.CertBytes,
			"cert_payload": entitlement.CertPayload,
			"updated_at":   entitlement.UpdatedAt,
		}).Error
}

func (r *repo) DeleteEntitlements(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&pooldomain.Entitlement{}).Error
}
