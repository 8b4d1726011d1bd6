package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

func TestRevocationOrder_NewestFirstThenHighestID(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entitlements := []pooldomain.Entitlement{
		{ID: 1, CreatedAt: t0},
		{ID: 3, CreatedAt: t0.Add(time.Hour)},
		{ID: 2, CreatedAt: t0.Add(time.Hour)},
	}

	ordered := revocationOrder(entitlements)

	require.Len(t, ordered, 3)
	assert.Equal(t, int64(3), int64(ordered[0].ID))
	assert.Equal(t, int64(2), int64(ordered[1].ID))
	assert.Equal(t, int64(1), int64(ordered[2].ID))
	// Input untouched.
	assert.Equal(t, int64(1), int64(entitlements[0].ID))
}

func TestCandidateDirtyEntitlements(t *testing.T) {
	node := testNode(t)
	owner := ownerdomain.Owner{ID: node.Generate(), Key: "acme"}

	affectedPool := pooldomain.Pool{ID: node.Generate(), ProductID: "p-hit"}
	cleanPool := pooldomain.Pool{ID: node.Generate(), ProductID: "p-clean"}
	deletedPool := pooldomain.Pool{ID: node.Generate(), ProductID: "p-hit"}
	markedPool := pooldomain.Pool{ID: node.Generate(), ProductID: "p-clean"}

	entAffected := pooldomain.Entitlement{ID: node.Generate(), PoolID: affectedPool.ID}
	entClean := pooldomain.Entitlement{ID: node.Generate(), PoolID: cleanPool.ID}
	entDeleted := pooldomain.Entitlement{ID: node.Generate(), PoolID: deletedPool.ID}
	entMarked := pooldomain.Entitlement{ID: node.Generate(), PoolID: markedPool.ID}

	state := &localState{
		owner:        owner,
		pools:        []pooldomain.Pool{affectedPool, cleanPool, deletedPool, markedPool},
		entitlements: []pooldomain.Entitlement{entAffected, entClean, entDeleted, entMarked},
	}
	delta := refreshdomain.PoolDelta{Deleted: []pooldomain.Pool{deletedPool}}

	cs := refreshdomain.NewChangeSet()
	cs.DirtyPoolIDs[markedPool.ID] = true

	dirty := candidateDirtyEntitlements(state, delta, map[string]bool{"p-hit": true}, cs)

	assert.True(t, dirty[int64(entAffected.ID)])
	assert.True(t, dirty[int64(entMarked.ID)])
	assert.False(t, dirty[int64(entClean.ID)])
	assert.False(t, dirty[int64(entDeleted.ID)])
}

func TestAllEntitlements_SkipsDeletedPools(t *testing.T) {
	node := testNode(t)
	keep := pooldomain.Pool{ID: node.Generate()}
	gone := pooldomain.Pool{ID: node.Generate()}

	entKeep := pooldomain.Entitlement{ID: node.Generate(), PoolID: keep.ID}
	entGone := pooldomain.Entitlement{ID: node.Generate(), PoolID: gone.ID}

	state := &localState{
		pools:        []pooldomain.Pool{keep, gone},
		entitlements: []pooldomain.Entitlement{entKeep, entGone},
	}
	delta := refreshdomain.PoolDelta{Deleted: []pooldomain.Pool{gone}}

	dirty := allEntitlements(state, delta)

	assert.True(t, dirty[int64(entKeep.ID)])
	assert.False(t, dirty[int64(entGone.ID)])
}
