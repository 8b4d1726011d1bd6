package domain

import (
	"context"
)

type ConsumeRequest struct {
	PoolID     string
	ConsumerID string
	Quantity   int64
}

type CreateConsumerRequest struct {
	Name string
}

// Service exposes the consumer-facing pool operations. Pools themselves are
// only ever written by the refresh pipeline.
type Service interface {
	ListPools(ctx context.Context) ([]Pool, error)
	GetPool(ctx context.Context, id string) (Pool, error)
	CreateConsumer(ctx context.Context, req CreateConsumerRequest) (Consumer, error)
	Consume(ctx context.Context, req ConsumeRequest) (Entitlement, error)
	ListEntitlements(ctx context.Context, consumerID string) ([]Entitlement, error)
	GetEntitlement(ctx context.Context, id string) (Entitlement, error)
	Revoke(ctx context.Context, entitlementID string) error
}
