package service

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
)

// catalogSync is the persistence plan for the owner's product/content
// materializations.
type catalogSync struct {
	saveProducts   []*catalogdomain.Product
	deleteProducts []string
	saveContent    []*catalogdomain.Content
	deleteContent  []string
}

// effectiveSubscriptions filters the snapshot down to subscriptions that
// should materialize as pools for this owner: owned by the owner, not
// expired, and referencing products the snapshot actually carries.
// Inconsistent subscriptions are returned separately; they are skipped, not
// fatal.
func effectiveSubscriptions(snapshot upstreamdomain.Snapshot, ownerKey string, now time.Time) (map[string]upstreamdomain.Subscription, []string) {
	effective := make(map[string]upstreamdomain.Subscription)
	var skipped []string

	for _, sub := range snapshot.Subscriptions {
		if sub.OwnerKey != ownerKey {
			continue
		}
		if !sub.EndDate.IsZero() && sub.EndDate.Before(now) {
			continue
		}
		if !subscriptionConsistent(sub, snapshot) {
			skipped = append(skipped, sub.ID)
			continue
		}
		effective[sub.ID] = sub
	}

	sort.Strings(skipped)
	return effective, skipped
}

func subscriptionConsistent(sub upstreamdomain.Subscription, snapshot upstreamdomain.Snapshot) bool {
	if _, ok := snapshot.Products[sub.ProductID]; !ok {
		return false
	}
	for _, id := range sub.ProvidedProductIDs {
		if _, ok := snapshot.Products[id]; !ok {
			return false
		}
	}
	if sub.DerivedProductID != "" {
		if _, ok := snapshot.Products[sub.DerivedProductID]; !ok {
			return false
		}
	}
	for _, id := range sub.DerivedProvidedProductIDs {
		if _, ok := snapshot.Products[id]; !ok {
			return false
		}
	}
	return true
}

// synchronizePools diffs effective upstream subscriptions against the
// owner's pools. A pool whose subscription is absent, expired or migrated
// away is deleted; a subscription without a pool creates one; the rest are
// compared field by field. Quantity-only changes update the pool without
// dirtying certificates.
func synchronizePools(genID *snowflake.Node, now time.Time, state *localState, effective map[string]upstreamdomain.Subscription, snapshot upstreamdomain.Snapshot, cs *refreshdomain.ChangeSet) refreshdomain.PoolDelta {
	var delta refreshdomain.PoolDelta

	seen := make(map[string]bool, len(state.pools))
	for i := range state.pools {
		pool := &state.pools[i]
		seen[pool.SubscriptionID] = true

		sub, ok := effective[pool.SubscriptionID]
		if !ok {
			delta.Deleted = append(delta.Deleted, *pool)
			continue
		}

		updated, dirty := applySubscription(pool, sub, snapshot, now)
		if updated {
			delta.Updated = append(delta.Updated, pool)
			if dirty {
				cs.DirtyPoolIDs[pool.ID] = true
			}
		} else {
			delta.Unchanged++
		}
	}

	subIDs := make([]string, 0, len(effective))
	for id := range effective {
		subIDs = append(subIDs, id)
	}
	sort.Strings(subIDs)

	for _, id := range subIDs {
		if seen[id] {
			continue
		}
		sub := effective[id]
		pool := newPool(genID, now, state.owner.ID, sub, snapshot)
		delta.Created = append(delta.Created, pool)
	}

	return delta
}

func newPool(genID *snowflake.Node, now time.Time, ownerID snowflake.ID, sub upstreamdomain.Subscription, snapshot upstreamdomain.Snapshot) *pooldomain.Pool {
	pool := &pooldomain.Pool{
		ID:                        genID.Generate(),
		OwnerID:                   ownerID,
		SubscriptionID:            sub.ID,
		ProductID:                 sub.ProductID,
		ProvidedProductIDs:        datatypes.NewJSONSlice(sortedCopy(sub.ProvidedProductIDs)),
		DerivedProvidedProductIDs: datatypes.NewJSONSlice(sortedCopy(sub.DerivedProvidedProductIDs)),
		ProductAttributes:         attributeSnapshot(sub.ProductID, snapshot),
		Quantity:                  sub.Quantity,
		StartDate:                 sub.StartDate,
		EndDate:                   sub.EndDate,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if sub.DerivedProductID != "" {
		derived := sub.DerivedProductID
		pool.DerivedProductID = &derived
	}
	return pool
}

// applySubscription updates pool in place from sub. It reports whether
// anything changed and whether the change is certificate-relevant (product
// graph or attribute snapshot, as opposed to quantity or dates alone).
func applySubscription(pool *pooldomain.Pool, sub upstreamdomain.Subscription, snapshot upstreamdomain.Snapshot, now time.Time) (updated, dirty bool) {
	if pool.ProductID != sub.ProductID {
		pool.ProductID = sub.ProductID
		updated, dirty = true, true
	}

	if !setEqual(pool.ProvidedProductIDs, sub.ProvidedProductIDs) {
		pool.ProvidedProductIDs = datatypes.NewJSONSlice(sortedCopy(sub.ProvidedProductIDs))
		updated, dirty = true, true
	}

	currentDerived := ""
	if pool.DerivedProductID != nil {
		currentDerived = *pool.DerivedProductID
	}
	if currentDerived != sub.DerivedProductID {
		if sub.DerivedProductID == "" {
			pool.DerivedProductID = nil
		} else {
			derived := sub.DerivedProductID
			pool.DerivedProductID = &derived
		}
		updated, dirty = true, true
	}

	if !setEqual(pool.DerivedProvidedProductIDs, sub.DerivedProvidedProductIDs) {
		pool.DerivedProvidedProductIDs = datatypes.NewJSONSlice(sortedCopy(sub.DerivedProvidedProductIDs))
		updated, dirty = true, true
	}

	attrs := attributeSnapshot(sub.ProductID, snapshot)
	if !attributesEqual(pool.ProductAttributes, attrs) {
		pool.ProductAttributes = attrs
		updated, dirty = true, true
	}

	if pool.Quantity != sub.Quantity {
		pool.Quantity = sub.Quantity
		updated = true
	}

	if !pool.StartDate.Equal(sub.StartDate) || !pool.EndDate.Equal(sub.EndDate) {
		pool.StartDate = sub.StartDate
		pool.EndDate = sub.EndDate
		updated = true
	}

	if updated {
		pool.UpdatedAt = now
	}
	return updated, dirty
}

// synchronizeCatalog reconciles the owner's product/content rows from the
// snapshot, recording certificate-relevant changes in the change set.
// Rows no longer present upstream are removed unless a surviving pool still
// references them (inconsistent upstream data keeps the old materialization).
func synchronizeCatalog(genID *snowflake.Node, now time.Time, state *localState, snapshot upstreamdomain.Snapshot, delta refreshdomain.PoolDelta, cs *refreshdomain.ChangeSet) catalogSync {
	var plan catalogSync

	productIDs := make([]string, 0, len(snapshot.Products))
	for id := range snapshot.Products {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	for _, id := range productIDs {
		up := snapshot.Products[id]
		local, exists := state.products[id]
		if !exists {
			row := catalogdomain.Product{
				ID:         genID.Generate(),
				OwnerID:    state.owner.ID,
				UpstreamID: up.ID,
				Name:       up.Name,
				Attributes: toJSONMap(up.Attributes),
				ContentIDs: datatypes.NewJSONSlice(sortedCopy(up.ContentIDs)),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			state.products[id] = row
			plan.saveProducts = append(plan.saveProducts, &row)
			continue
		}

		if local.Name == up.Name &&
			attributesEqual(local.Attributes, toJSONMap(up.Attributes)) &&
			setEqual(local.ContentIDs, up.ContentIDs) {
			continue
		}

		local.Name = up.Name
		local.Attributes = toJSONMap(up.Attributes)
		local.ContentIDs = datatypes.NewJSONSlice(sortedCopy(up.ContentIDs))
		local.UpdatedAt = now
		state.products[id] = local
		plan.saveProducts = append(plan.saveProducts, &local)
		cs.ChangedProducts[id] = true
	}

	contentIDs := make([]string, 0, len(snapshot.Content))
	for id := range snapshot.Content {
		contentIDs = append(contentIDs, id)
	}
	sort.Strings(contentIDs)

	for _, id := range contentIDs {
		up := snapshot.Content[id]
		local, exists := state.content[id]
		if !exists {
			row := catalogdomain.Content{
				ID:                 genID.Generate(),
				OwnerID:            state.owner.ID,
				UpstreamID:         up.ID,
				Label:              up.Label,
				ContentURL:         up.ContentURL,
				ModifiedProductIDs: datatypes.NewJSONSlice(sortedCopy(up.ModifiedProductIDs)),
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			state.content[id] = row
			plan.saveContent = append(plan.saveContent, &row)
			// New content attached to an existing product shows up as a
			// product change; a new modifies edge alone still needs to
			// propagate, so record it.
			if len(up.ModifiedProductIDs) > 0 {
				cs.ChangedContent[id] = true
				cs.ContentEdges[id] = sortedCopy(up.ModifiedProductIDs)
			}
			continue
		}

		if local.Label == up.Label &&
			local.ContentURL == up.ContentURL &&
			setEqual(local.ModifiedProductIDs, up.ModifiedProductIDs) {
			continue
		}

		edges := unionSet(local.ModifiedProductIDs, up.ModifiedProductIDs)

		local.Label = up.Label
		local.ContentURL = up.ContentURL
		local.ModifiedProductIDs = datatypes.NewJSONSlice(sortedCopy(up.ModifiedProductIDs))
		local.UpdatedAt = now
		state.content[id] = local
		plan.saveContent = append(plan.saveContent, &local)
		cs.ChangedContent[id] = true
		cs.ContentEdges[id] = edges
	}

	referenced := make(map[string]bool)
	for i := range state.pools {
		if poolDeleted(state.pools[i], delta) {
			continue
		}
		for _, productID := range state.pools[i].ProductGraph() {
			referenced[productID] = true
		}
	}
	for _, pool := range delta.Created {
		for _, productID := range pool.ProductGraph() {
			referenced[productID] = true
		}
	}

	for id := range state.products {
		if _, ok := snapshot.Products[id]; ok {
			continue
		}
		if referenced[id] {
			continue
		}
		plan.deleteProducts = append(plan.deleteProducts, id)
		delete(state.products, id)
	}
	sort.Strings(plan.deleteProducts)

	attached := make(map[string]bool)
	for _, product := range state.products {
		for _, contentID := range product.ContentIDs {
			attached[contentID] = true
		}
	}

	for id, local := range state.content {
		if _, ok := snapshot.Content[id]; ok {
			continue
		}
		if attached[id] {
			continue
		}
		plan.deleteContent = append(plan.deleteContent, id)
		cs.ChangedContent[id] = true
		cs.ContentEdges[id] = sortedCopy(local.ModifiedProductIDs)
		delete(state.content, id)
	}
	sort.Strings(plan.deleteContent)

	return plan
}

func poolDeleted(pool pooldomain.Pool, delta refreshdomain.PoolDelta) bool {
	for _, deleted := range delta.Deleted {
		if deleted.ID == pool.ID {
			return true
		}
	}
	return false
}

func attributeSnapshot(productID string, snapshot upstreamdomain.Snapshot) datatypes.JSONMap {
	product, ok := snapshot.Products[productID]
	if !ok {
		return datatypes.JSONMap{}
	}
	return toJSONMap(product.Attributes)
}

func toJSONMap(attrs map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func attributesEqual(a, b datatypes.JSONMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			return false
		}
		sa, aok := va.(string)
		sb, bok := vb.(string)
		if aok && bok {
			if sa != sb {
				return false
			}
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

// setEqual compares two id lists as sets; order is irrelevant.
func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := sortedCopy(a)
	sb := sortedCopy(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func unionSet(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		set[id] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
