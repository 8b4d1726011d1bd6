package service

import (
	"sort"

	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

// candidateDirtyEntitlements computes the entitlements whose certificates may
// be stale: every entitlement of a surviving pool whose product graph
// intersects the expanded change set, plus entitlements of pools the
// synchronizer itself marked dirty. Deleted pools are excluded (their
// entitlements are revoked, not regenerated); created pools have no
// entitlements yet.
//
// This is a deliberate over-approximation: the regeneration step recomputes
// each candidate's payload and only rotates the serial when the payload
// actually changed.
func candidateDirtyEntitlements(state *localState, delta refreshdomain.PoolDelta, affectedProducts map[string]bool, cs refreshdomain.ChangeSet) map[int64]bool {
	deleted := make(map[int64]bool, len(delta.Deleted))
	for _, pool := range delta.Deleted {
		deleted[int64(pool.ID)] = true
	}

	dirtyPools := make(map[int64]bool)
	for _, pool := range state.pools {
		if deleted[int64(pool.ID)] {
			continue
		}
		if cs.DirtyPoolIDs[pool.ID] {
			dirtyPools[int64(pool.ID)] = true
			continue
		}
		for _, productID := range pool.ProductGraph() {
			if affectedProducts[productID] {
				dirtyPools[int64(pool.ID)] = true
				break
			}
		}
	}

	dirty := make(map[int64]bool)
	for _, ent := range state.entitlements {
		if dirtyPools[int64(ent.PoolID)] {
			dirty[int64(ent.ID)] = true
		}
	}
	return dirty
}

// allEntitlements marks every surviving entitlement dirty; used by force.
func allEntitlements(state *localState, delta refreshdomain.PoolDelta) map[int64]bool {
	deleted := make(map[int64]bool, len(delta.Deleted))
	for _, pool := range delta.Deleted {
		deleted[int64(pool.ID)] = true
	}

	dirty := make(map[int64]bool, len(state.entitlements))
	for _, ent := range state.entitlements {
		if deleted[int64(ent.PoolID)] {
			continue
		}
		dirty[int64(ent.ID)] = true
	}
	return dirty
}

// revocationOrder is the deterministic tie-break for over-consumption:
// most recently created first, falling back to descending id for identical
// timestamps. Swap this function to change the policy.
func revocationOrder(entitlements []pooldomain.Entitlement) []pooldomain.Entitlement {
	ordered := make([]pooldomain.Entitlement, len(entitlements))
	copy(ordered, entitlements)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})
	return ordered
}
