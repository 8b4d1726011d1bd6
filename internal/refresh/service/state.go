package service

import (
	"context"

	"gorm.io/gorm"

	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

// localState is the owner-scoped snapshot of current persisted state the
// pipeline diffs against. The pipeline itself is a pure function over
// localState plus the upstream snapshot; everything it decides is persisted
// in one transaction afterwards.
type localState struct {
	owner        ownerdomain.Owner
	pools        []pooldomain.Pool
	products     map[string]catalogdomain.Product
	content      map[string]catalogdomain.Content
	entitlements []pooldomain.Entitlement
}

func (s *Service) loadState(ctx context.Context, tx *gorm.DB, owner ownerdomain.Owner) (*localState, error) {
	pools, err := s.poolRepo.ListPools(ctx, tx, owner.ID)
	if err != nil {
		return nil, err
	}

	products, err := s.catalogRepo.ListProducts(ctx, tx, owner.ID)
	if err != nil {
		return nil, err
	}

	content, err := s.catalogRepo.ListContent(ctx, tx, owner.ID)
	if err != nil {
		return nil, err
	}

	entitlements, err := s.poolRepo.ListEntitlementsByOwner(ctx, tx, owner.ID)
	if err != nil {
		return nil, err
	}

	state := &localState{
		owner:        owner,
		pools:        pools,
		products:     make(map[string]catalogdomain.Product, len(products)),
		content:      make(map[string]catalogdomain.Content, len(content)),
		entitlements: entitlements,
	}
	for _, product := range products {
		state.products[product.UpstreamID] = product
	}
	for _, item := range content {
		state.content[item.UpstreamID] = item
	}
	return state, nil
}

// entitlementsByPool groups the owner's entitlements for cascade decisions.
func (st *localState) entitlementsByPool() map[int64][]pooldomain.Entitlement {
	grouped := make(map[int64][]pooldomain.Entitlement)
	for _, ent := range st.entitlements {
		grouped[int64(ent.PoolID)] = append(grouped[int64(ent.PoolID)], ent)
	}
	return grouped
}

// heldProductSet returns, per consumer, the set of product ids currently
// reachable through the consumer's entitlements. revoked filters out
// entitlements already chosen for revocation in this run.
func heldProductSet(pools []pooldomain.Pool, entitlements []pooldomain.Entitlement, revoked map[int64]bool) map[int64]map[string]bool {
	poolsByID := make(map[int64]pooldomain.Pool, len(pools))
	for _, pool := range pools {
		poolsByID[int64(pool.ID)] = pool
	}

	held := make(map[int64]map[string]bool)
	for _, ent := range entitlements {
		if revoked[int64(ent.ID)] {
			continue
		}
		pool, ok := poolsByID[int64(ent.PoolID)]
		if !ok {
			continue
		}
		set, ok := held[int64(ent.ConsumerID)]
		if !ok {
			set = make(map[string]bool)
			held[int64(ent.ConsumerID)] = set
		}
		for _, productID := range pool.ProductGraph() {
			set[productID] = true
		}
	}
	return held
}
