// Package memory provides an in-memory upstream adapter. It backs tests and
// local development, where no hosted subscription service is available.
package memory

import (
	"context"
	"sync"

	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
)

// Adapter is a mutable in-memory upstream. Safe for concurrent use.
type Adapter struct {
	mu            sync.RWMutex
	subscriptions map[string]upstreamdomain.Subscription
	products      map[string]upstreamdomain.Product
	content       map[string]upstreamdomain.Content
	failNext      error
}

func New() *Adapter {
	return &Adapter{
		subscriptions: make(map[string]upstreamdomain.Subscription),
		products:      make(map[string]upstreamdomain.Product),
		content:       make(map[string]upstreamdomain.Content),
	}
}

// PutSubscription creates or replaces an upstream subscription.
func (a *Adapter) PutSubscription(sub upstreamdomain.Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscriptions[sub.ID] = sub
}

// DeleteSubscription removes an upstream subscription.
func (a *Adapter) DeleteSubscription(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subscriptions, id)
}

// PutProduct creates or replaces an upstream product.
func (a *Adapter) PutProduct(product upstreamdomain.Product) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.products[product.ID] = product
}

// DeleteProduct removes an upstream product.
func (a *Adapter) DeleteProduct(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.products, id)
}

// PutContent creates or replaces an upstream content record.
func (a *Adapter) PutContent(content upstreamdomain.Content) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.content[content.ID] = content
}

// FailNextFetch makes the next FetchSnapshot call return err.
func (a *Adapter) FailNextFetch(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = err
}

// FetchSnapshot returns the owner's subscriptions plus every product and
// content record they reference, directly or through provided/derived sets.
func (a *Adapter) FetchSnapshot(ctx context.Context, ownerKey string) (upstreamdomain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return upstreamdomain.Snapshot{}, err
	}

	a.mu.Lock()
	if a.failNext != nil {
		err := a.failNext
		a.failNext = nil
		a.mu.Unlock()
		return upstreamdomain.Snapshot{}, err
	}
	a.mu.Unlock()

	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := upstreamdomain.Snapshot{
		OwnerKey: ownerKey,
		Products: make(map[string]upstreamdomain.Product),
		Content:  make(map[string]upstreamdomain.Content),
	}

	for _, sub := range a.subscriptions {
		if sub.OwnerKey != ownerKey {
			continue
		}
		snapshot.Subscriptions = append(snapshot.Subscriptions, sub)

		productIDs := append([]string{sub.ProductID}, sub.ProvidedProductIDs...)
		if sub.DerivedProductID != "" {
			productIDs = append(productIDs, sub.DerivedProductID)
		}
		productIDs = append(productIDs, sub.DerivedProvidedProductIDs...)

		for _, id := range productIDs {
			product, ok := a.products[id]
			if !ok {
				continue
			}
			snapshot.Products[id] = product
			for _, contentID := range product.ContentIDs {
				if content, ok := a.content[contentID]; ok {
					snapshot.Content[contentID] = content
				}
			}
		}
	}

	// Content modifying a referenced product must ride along even when its
	// host product belongs to another subscription of the same owner.
	for _, content := range a.content {
		if _, seen := snapshot.Content[content.ID]; seen {
			continue
		}
		for _, modified := range content.ModifiedProductIDs {
			if _, ok := snapshot.Products[modified]; ok {
				snapshot.Content[content.ID] = content
				break
			}
		}
	}

	return snapshot, nil
}
