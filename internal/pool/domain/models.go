// Package domain contains pools, consumers and entitlements. A pool is the
// owner-local materialization of one upstream subscription; entitlements are
// consumer grants drawn from a pool, each backed by a signed certificate.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Pool mirrors one upstream subscription within its owner. Only the refresh
// pipeline creates, updates or deletes pools, keyed by subscription id.
// Consumed may temporarily exceed Quantity after an upstream quantity
// reduction; the revocation cascade restores the invariant.
type Pool struct {
	ID                        snowflake.ID                `gorm:"primaryKey" json:"id"`
	OwnerID                   snowflake.ID                `gorm:"not null;index;uniqueIndex:idx_pools_owner_subscription" json:"owner_id"`
	SubscriptionID            string                      `gorm:"type:text;not null;uniqueIndex:idx_pools_owner_subscription" json:"subscription_id"`
	ProductID                 string                      `gorm:"type:text;not null;index" json:"product_id"`
	ProvidedProductIDs        datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"provided_product_ids"`
	DerivedProductID          *string                     `gorm:"type:text" json:"derived_product_id"`
	DerivedProvidedProductIDs datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"derived_provided_product_ids"`
	ProductAttributes         datatypes.JSONMap           `gorm:"type:jsonb" json:"product_attributes"`
	Quantity                  int64                       `gorm:"not null" json:"quantity"`
	Consumed                  int64                       `gorm:"not null;default:0" json:"consumed"`
	StartDate                 time.Time                   `gorm:"not null" json:"start_date"`
	EndDate                   time.Time                   `gorm:"not null" json:"end_date"`
	CreatedAt                 time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                 time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Pool) TableName() string { return "pools" }

// Consumer is the minimal identity entitlements are granted to.
type Consumer struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID   snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Consumer) TableName() string { return "consumers" }

// Entitlement is a consumer's grant against a pool. CertPayload holds the
// canonical payload bytes the certificate was issued over; the refresh
// pipeline compares freshly computed payloads against it to decide whether a
// new serial is needed.
type Entitlement struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	PoolID      snowflake.ID `gorm:"not null;index" json:"pool_id"`
	ConsumerID  snowflake.ID `gorm:"not null;index" json:"consumer_id"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	CertSerial  int64        `gorm:"not null" json:"cert_serial"`
	CertBytes   []byte       `gorm:"type:blob" json:"-"`
	CertPayload []byte       `gorm:"type:blob" json:"-"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "entitlements" }

// ProductGraph returns every product id reachable from the pool: the entitled
// product, provided products, and the derived product set.
func (p Pool) ProductGraph() []string {
	ids := make([]string, 0, 2+len(p.ProvidedProductIDs)+len(p.DerivedProvidedProductIDs))
	ids = append(ids, p.ProductID)
	ids = append(ids, p.ProvidedProductIDs...)
	if p.DerivedProductID != nil && *p.DerivedProductID != "" {
		ids = append(ids, *p.DerivedProductID)
	}
	ids = append(ids, p.DerivedProvidedProductIDs...)
	return ids
}
