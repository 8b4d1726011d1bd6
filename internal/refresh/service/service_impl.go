package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/certificate"
	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	"github.com/entforge/entforge/internal/clock"
	obsmetrics "github.com/entforge/entforge/internal/observability/metrics"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
	"github.com/entforge/entforge/internal/refresh/ownerlock"
	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	adapter     upstreamdomain.Adapter
	signer      certificate.Signer
	ownerRepo   ownerdomain.Repository
	poolRepo    pooldomain.Repository
	catalogRepo catalogdomain.Repository

	locks *ownerlock.Registry
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Adapter     upstreamdomain.Adapter
	Signer      certificate.Signer
	OwnerRepo   ownerdomain.Repository
	PoolRepo    pooldomain.Repository
	CatalogRepo catalogdomain.Repository
}

func NewService(p ServiceParam) refreshdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("refresh.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		adapter:     p.Adapter,
		signer:      p.Signer,
		ownerRepo:   p.OwnerRepo,
		poolRepo:    p.PoolRepo,
		catalogRepo: p.CatalogRepo,
		locks:       ownerlock.NewRegistry(),
	}
}

// Refresh reconciles one owner against the upstream source of truth. It is
// idempotent: with an unchanged snapshot the second run is a no-op. The
// upstream fetch happens before any local write, and all writes commit in a
// single transaction.
func (s *Service) Refresh(ctx context.Context, ownerKey string, force bool) (refreshdomain.RefreshResult, error) {
	ownerKey = strings.TrimSpace(ownerKey)

	owner, err := s.ownerRepo.FindByKey(ctx, s.db, ownerKey)
	if err != nil {
		return refreshdomain.RefreshResult{}, err
	}
	if owner == nil {
		return refreshdomain.RefreshResult{}, ownerdomain.ErrOwnerNotFound
	}

	unlock := s.locks.Lock(ownerKey)
	defer unlock()

	start := s.clock.Now()

	snapshot, err := s.adapter.FetchSnapshot(ctx, ownerKey)
	if err != nil {
		obsmetrics.Refresh().ObserveRun(obsmetrics.RunOutcomeFetchFailed, s.clock.Now().Sub(start))
		return refreshdomain.RefreshResult{}, fmt.Errorf("fetch snapshot for %s: %w", ownerKey, err)
	}

	result := refreshdomain.RefreshResult{OwnerKey: ownerKey}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.loadState(ctx, tx, *owner)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		cs := refreshdomain.NewChangeSet()

		effective, skipped := effectiveSubscriptions(snapshot, ownerKey, now)
		result.SkippedSubscriptions = skipped

		delta := synchronizePools(s.genID, now, state, effective, snapshot, &cs)
		plan := synchronizeCatalog(s.genID, now, state, snapshot, delta, &cs)

		if err := s.persistSync(ctx, tx, state, delta, plan); err != nil {
			return err
		}

		var dirty map[int64]bool
		if force {
			dirty = allEntitlements(state, delta)
		} else if !cs.Empty() {
			idx := buildDependencyIndex(state.products)
			affected := idx.expand(cs)
			dirty = candidateDirtyEntitlements(state, delta, affected, cs)
		}

		outcome, err := s.applyEntitlementChanges(ctx, tx, state, delta, dirty, force, now)
		if err != nil {
			return err
		}

		// The quantity cascade may have adjusted Consumed after the first
		// save; persist the final pool state.
		if err := s.poolRepo.SavePools(ctx, tx, delta.Updated); err != nil {
			return err
		}

		result.PoolsCreated = len(delta.Created)
		result.PoolsUpdated = len(delta.Updated)
		result.PoolsDeleted = len(delta.Deleted)
		result.PoolsUnchanged = delta.Unchanged
		result.EntitlementsRevoked = len(outcome.revokedIDs)
		result.CertsRegenerated = len(outcome.regeneratedIDs)
		result.RevokedEntitlementIDs = outcome.revokedIDs
		result.RegeneratedEntitlementIDs = outcome.regeneratedIDs
		result.FailedRegenerations = outcome.failedIDs

		for _, pool := range delta.Created {
			result.CreatedPoolIDs = append(result.CreatedPoolIDs, pool.ID)
		}
		for _, pool := range delta.Updated {
			result.UpdatedPoolIDs = append(result.UpdatedPoolIDs, pool.ID)
		}
		for _, pool := range delta.Deleted {
			result.DeletedPoolIDs = append(result.DeletedPoolIDs, pool.ID)
		}
		return nil
	})
	if err != nil {
		obsmetrics.Refresh().ObserveRun(obsmetrics.RunOutcomeFailed, s.clock.Now().Sub(start))
		return refreshdomain.RefreshResult{}, fmt.Errorf("%w: %v", refreshdomain.ErrRefreshFailed, err)
	}

	obsmetrics.Refresh().ObserveRun(obsmetrics.RunOutcomeFinished, s.clock.Now().Sub(start))
	obsmetrics.Refresh().ObserveResult(result)

	s.log.Info("refresh complete",
		zap.String("owner_key", ownerKey),
		zap.Bool("force", force),
		zap.Int("pools_created", result.PoolsCreated),
		zap.Int("pools_updated", result.PoolsUpdated),
		zap.Int("pools_deleted", result.PoolsDeleted),
		zap.Int("entitlements_revoked", result.EntitlementsRevoked),
		zap.Int("certs_regenerated", result.CertsRegenerated),
	)
	return result, nil
}

func (s *Service) persistSync(ctx context.Context, tx *gorm.DB, state *localState, delta refreshdomain.PoolDelta, plan catalogSync) error {
	if err := s.catalogRepo.SaveProducts(ctx, tx, plan.saveProducts); err != nil {
		return err
	}
	if err := s.catalogRepo.SaveContent(ctx, tx, plan.saveContent); err != nil {
		return err
	}
	if err := s.catalogRepo.DeleteProducts(ctx, tx, state.owner.ID, plan.deleteProducts); err != nil {
		return err
	}
	if err := s.catalogRepo.DeleteContent(ctx, tx, state.owner.ID, plan.deleteContent); err != nil {
		return err
	}

	if err := s.poolRepo.SavePools(ctx, tx, delta.Created); err != nil {
		return err
	}
	if err := s.poolRepo.SavePools(ctx, tx, delta.Updated); err != nil {
		return err
	}

	if len(delta.Deleted) > 0 {
		ids := make([]snowflake.ID, 0, len(delta.Deleted))
		for _, pool := range delta.Deleted {
			ids = append(ids, pool.ID)
		}
		if err := s.poolRepo.DeletePools(ctx, tx, state.owner.ID, ids); err != nil {
			return err
		}
	}
	return nil
}
