// Package domain defines the refresh pipeline's contracts: the change set
// produced by synchronization, the pool delta, and the refresh result
// reported to callers and jobs.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

var (
	ErrRefreshFailed = errors.New("refresh_failed")
)

// ChangeSet records what the synchronizer touched. Product and content ids
// are upstream ids scoped to the owner being refreshed. ContentEdges holds,
// for each changed content id, the union of its pre- and post-change
// modified_product_ids: a product removed from the list still needs its
// certificates rebuilt so they drop the no-longer-visible content.
type ChangeSet struct {
	ChangedProducts map[string]bool
	ChangedContent  map[string]bool
	ContentEdges    map[string][]string
	DirtyPoolIDs    map[snowflake.ID]bool
}

func NewChangeSet() ChangeSet {
	return ChangeSet{
		ChangedProducts: make(map[string]bool),
		ChangedContent:  make(map[string]bool),
		ContentEdges:    make(map[string][]string),
		DirtyPoolIDs:    make(map[snowflake.ID]bool),
	}
}

// Empty reports whether the synchronizer saw no certificate-relevant change.
func (c ChangeSet) Empty() bool {
	return len(c.ChangedProducts) == 0 && len(c.ChangedContent) == 0 && len(c.DirtyPoolIDs) == 0
}

// PoolDelta is the synchronizer's create/update/delete decision over the
// owner's pools.
type PoolDelta struct {
	Created   []*pooldomain.Pool
	Updated   []*pooldomain.Pool
	Deleted   []pooldomain.Pool
	Unchanged int
}

// RefreshResult is the structured outcome of one refresh invocation. The
// same value is returned synchronously and recorded on asynchronous jobs.
type RefreshResult struct {
	OwnerKey string `json:"owner_key"`

	PoolsCreated   int `json:"pools_created"`
	PoolsUpdated   int `json:"pools_updated"`
	PoolsDeleted   int `json:"pools_deleted"`
	PoolsUnchanged int `json:"pools_unchanged"`

	EntitlementsRevoked int `json:"entitlements_revoked"`
	CertsRegenerated    int `json:"certs_regenerated"`

	CreatedPoolIDs []snowflake.ID `json:"created_pool_ids,omitempty"`
	UpdatedPoolIDs []snowflake.ID `json:"updated_pool_ids,omitempty"`
	DeletedPoolIDs []snowflake.ID `json:"deleted_pool_ids,omitempty"`

	RevokedEntitlementIDs     []snowflake.ID `json:"revoked_entitlement_ids,omitempty"`
	RegeneratedEntitlementIDs []snowflake.ID `json:"regenerated_entitlement_ids,omitempty"`

	// FailedRegenerations lists entitlements whose certificate could not be
	// re-signed; they keep their previous certificate intact.
	FailedRegenerations []snowflake.ID `json:"failed_regenerations,omitempty"`

	// SkippedSubscriptions lists upstream subscriptions with inconsistent
	// data (for example a missing product) that were left out of this run.
	SkippedSubscriptions []string `json:"skipped_subscriptions,omitempty"`
}

// Service is the single entry point collaborators call. force bypasses the
// no-op short-circuit and reissues every certificate.
type Service interface {
	Refresh(ctx context.Context, ownerKey string, force bool) (RefreshResult, error)
}
