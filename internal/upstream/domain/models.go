// Package domain defines the upstream source-of-truth snapshot consumed by the
// refresh pipeline, and the adapter contract for fetching it.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFetchFailed = errors.New("upstream_fetch_failed")
)

// Subscription is an upstream-owned subscription record. OwnerKey reflects
// current upstream ownership; a subscription whose OwnerKey no longer matches
// the owner being refreshed has been migrated away.
type Subscription struct {
	ID                        string    `json:"id"`
	OwnerKey                  string    `json:"owner_key"`
	ProductID                 string    `json:"product_id"`
	ProvidedProductIDs        []string  `json:"provided_product_ids"`
	DerivedProductID          string    `json:"derived_product_id"`
	DerivedProvidedProductIDs []string  `json:"derived_provided_product_ids"`
	Quantity                  int64     `json:"quantity"`
	StartDate                 time.Time `json:"start_date"`
	EndDate                   time.Time `json:"end_date"`
}

// Product is the upstream product definition referenced by subscriptions.
type Product struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	ContentIDs []string          `json:"content_ids"`
}

// Content is the upstream content definition attached to products.
type Content struct {
	ID                 string   `json:"id"`
	Label              string   `json:"label"`
	ContentURL         string   `json:"content_url"`
	ModifiedProductIDs []string `json:"modified_product_ids"`
}

// Snapshot is the denormalized per-owner view of the upstream graph, fetched
// in one bounded call before any local mutation begins.
type Snapshot struct {
	OwnerKey      string
	Subscriptions []Subscription
	Products      map[string]Product
	Content       map[string]Content
}

// Adapter fetches the current upstream state for one owner.
type Adapter interface {
	FetchSnapshot(ctx context.Context, ownerKey string) (Snapshot, error)
}
