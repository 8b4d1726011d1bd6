package service

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/certificate"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

type applyOutcome struct {
	revokedIDs     []snowflake.ID
	regeneratedIDs []snowflake.ID
	failedIDs      []snowflake.ID
}

// applyEntitlementChanges runs the revocation cascades and regenerates stale
// certificates, inside the caller's transaction.
//
// Revocation happens for exactly two reasons: the backing pool was deleted,
// or the pool's quantity dropped below what is consumed. Nothing else
// revokes entitlements here, in particular nothing a consumer reports
// about itself.
func (s *Service) applyEntitlementChanges(ctx context.Context, tx *gorm.DB, state *localState, delta refreshdomain.PoolDelta, dirty map[int64]bool, force bool, now time.Time) (applyOutcome, error) {
	var outcome applyOutcome

	byPool := state.entitlementsByPool()
	revoked := make(map[int64]bool)
	var revokedSerials []int64

	// Deletion cascade: a deleted pool takes all of its entitlements with
	// it, unconditionally.
	for _, pool := range delta.Deleted {
		for _, ent := range byPool[int64(pool.ID)] {
			if revoked[int64(ent.ID)] {
				continue
			}
			revoked[int64(ent.ID)] = true
			revokedSerials = append(revokedSerials, ent.CertSerial)
			outcome.revokedIDs = append(outcome.revokedIDs, ent.ID)
		}
	}

	// Quantity cascade: reduce over-consumed pools, newest grants first.
	for _, pool := range delta.Updated {
		consumed := int64(0)
		for _, ent := range byPool[int64(pool.ID)] {
			if !revoked[int64(ent.ID)] {
				consumed += ent.Quantity
			}
		}
		if consumed <= pool.Quantity {
			if pool.Consumed != consumed {
				pool.Consumed = consumed
			}
			continue
		}

		for _, ent := range revocationOrder(byPool[int64(pool.ID)]) {
			if consumed <= pool.Quantity {
				break
			}
			if revoked[int64(ent.ID)] {
				continue
			}
			revoked[int64(ent.ID)] = true
			revokedSerials = append(revokedSerials, ent.CertSerial)
			outcome.revokedIDs = append(outcome.revokedIDs, ent.ID)
			consumed -= ent.Quantity
		}
		pool.Consumed = consumed
	}

	if len(outcome.revokedIDs) > 0 {
		if err := s.poolRepo.DeleteEntitlements(ctx, tx, state.owner.ID, outcome.revokedIDs); err != nil {
			return outcome, err
		}
		if err := s.signer.Invalidate(ctx, tx, revokedSerials); err != nil {
			return outcome, err
		}
	}

	// Regeneration: recompute each candidate's payload against the post-sync
	// graph and rotate the serial only when the payload really changed.
	// force skips the equality short-circuit.
	survivors := survivingPools(state, delta)
	held := heldProductSet(survivors, state.entitlements, revoked)
	poolsByID := make(map[int64]pooldomain.Pool, len(survivors))
	for _, pool := range survivors {
		poolsByID[int64(pool.ID)] = pool
	}

	// A revoked grant shrinks what its consumer holds, which can remove
	// cross-visible content from the consumer's other certificates. Every
	// surviving entitlement of an affected consumer becomes a candidate;
	// the payload equality check below keeps the no-op case cheap.
	lostHolders := make(map[int64]bool)
	for _, ent := range state.entitlements {
		if revoked[int64(ent.ID)] {
			lostHolders[int64(ent.ConsumerID)] = true
		}
	}

	candidates := make([]pooldomain.Entitlement, 0, len(dirty))
	for _, ent := range state.entitlements {
		if revoked[int64(ent.ID)] {
			continue
		}
		if dirty[int64(ent.ID)] || lostHolders[int64(ent.ConsumerID)] {
			candidates = append(candidates, ent)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	for _, ent := range candidates {
		pool, ok := poolsByID[int64(ent.PoolID)]
		if !ok {
			continue
		}

		payload := certificate.BuildPayload(pool, state.products, state.content, held[int64(ent.ConsumerID)])
		canonical, err := payload.Canonical()
		if err != nil {
			outcome.failedIDs = append(outcome.failedIDs, ent.ID)
			continue
		}

		if !force && bytes.Equal(canonical, ent.CertPayload) {
			continue
		}

		cert, err := s.signer.Issue(ctx, tx, state.owner.ID, payload)
		if err != nil {
			s.log.Warn("certificate regeneration failed",
				zap.String("owner_key", state.owner.Key),
				zap.Int64("entitlement_id", int64(ent.ID)),
				zap.Error(err),
			)
			outcome.failedIDs = append(outcome.failedIDs, ent.ID)
			continue
		}

		oldSerial := ent.CertSerial
		ent.CertSerial = cert.Serial
		ent.CertBytes = cert.Bytes
		ent.CertPayload = cert.Payload
		ent.UpdatedAt = now

		if err := s.poolRepo.UpdateEntitlementCertificate(ctx, tx, &ent); err != nil {
			return outcome, err
		}
		if err := s.signer.Invalidate(ctx, tx, []int64{oldSerial}); err != nil {
			return outcome, err
		}
		outcome.regeneratedIDs = append(outcome.regeneratedIDs, ent.ID)
	}

	return outcome, nil
}

// survivingPools returns the owner's pools as they will exist after this
// refresh commits: deleted pools removed, updated fields applied.
func survivingPools(state *localState, delta refreshdomain.PoolDelta) []pooldomain.Pool {
	deleted := make(map[int64]bool, len(delta.Deleted))
	for _, pool := range delta.Deleted {
		deleted[int64(pool.ID)] = true
	}

	out := make([]pooldomain.Pool, 0, len(state.pools))
	for _, pool := range state.pools {
		if !deleted[int64(pool.ID)] {
			out = append(out, pool)
		}
	}
	return out
}
