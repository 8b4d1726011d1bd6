package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/certificate"
	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	"github.com/entforge/entforge/internal/clock"
	"github.com/entforge/entforge/internal/ownerctx"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo        pooldomain.Repository
	catalogRepo catalogdomain.Repository
	signer      certificate.Signer
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo        pooldomain.Repository
	CatalogRepo catalogdomain.Repository
	Signer      certificate.Signer
}

func NewService(p ServiceParam) pooldomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("pool.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		signer:      p.Signer,
	}
}

func (s *Service) ListPools(ctx context.Context) ([]pooldomain.Pool, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return nil, pooldomain.ErrInvalidOwner
	}
	return s.repo.ListPools(ctx, s.db, ownerID)
}

func (s *Service) GetPool(ctx context.Context, id string) (pooldomain.Pool, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return pooldomain.Pool{}, pooldomain.ErrInvalidOwner
	}

	poolID, err := s.parseID(id, pooldomain.ErrPoolNotFound)
	if err != nil {
		return pooldomain.Pool{}, err
	}

	pool, err := s.repo.FindPoolByID(ctx, s.db, ownerID, poolID)
	if err != nil {
		return pooldomain.Pool{}, err
	}
	if pool == nil {
		return pooldomain.Pool{}, pooldomain.ErrPoolNotFound
	}
	return *pool, nil
}

func (s *Service) CreateConsumer(ctx context.Context, req pooldomain.CreateConsumerRequest) (pooldomain.Consumer, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return pooldomain.Consumer{}, pooldomain.ErrInvalidOwner
	}

	consumer := pooldomain.Consumer{
		ID:        s.genID.Generate(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertConsumer(ctx, s.db, &consumer); err != nil {
		return pooldomain.Consumer{}, err
	}
	return consumer, nil
}

// Consume draws an entitlement from a pool and issues its certificate. Pools
// without the multi-entitlement product attribute grant at most quantity one
// per consumer.
func (s *Service) Consume(ctx context.Context, req pooldomain.ConsumeRequest) (pooldomain.Entitlement, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return pooldomain.Entitlement{}, pooldomain.ErrInvalidOwner
	}

	if req.Quantity <= 0 {
		return pooldomain.Entitlement{}, pooldomain.ErrInvalidQuantity
	}

	poolID, err := s.parseID(req.PoolID, pooldomain.ErrPoolNotFound)
	if err != nil {
		return pooldomain.Entitlement{}, err
	}
	consumerID, err := s.parseID(req.ConsumerID, pooldomain.ErrConsumerNotFound)
	if err != nil {
		return pooldomain.Entitlement{}, err
	}

	var entitlement pooldomain.Entitlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool, err := s.repo.FindPoolByIDForUpdate(ctx, tx, ownerID, poolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return pooldomain.ErrPoolNotFound
		}

		consumer, err := s.repo.FindConsumerByID(ctx, tx, ownerID, consumerID)
		if err != nil {
			return err
		}
		if consumer == nil {
			return pooldomain.ErrConsumerNotFound
		}

		existing, err := s.repo.ListEntitlementsByConsumer(ctx, tx, ownerID, consumerID)
		if err != nil {
			return err
		}

		if req.Quantity > 1 || consumerHoldsPool(existing, poolID) {
			if !multiEntitlementAllowed(pool.ProductAttributes) {
				return pooldomain.ErrMultiEntitlement
			}
		}

		if pool.Consumed+req.Quantity > pool.Quantity {
			return pooldomain.ErrInsufficientQuantity
		}

		payload, err := s.buildPayload(ctx, tx, ownerID, *pool, existing)
		if err != nil {
			return err
		}

		cert, err := s.signer.Issue(ctx, tx, ownerID, payload)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entitlement = pooldomain.Entitlement{
			ID:          s.genID.Generate(),
			OwnerID:     ownerID,
			PoolID:      poolID,
			ConsumerID:  consumerID,
			Quantity:    req.Quantity,
			CertSerial:  cert.Serial,
			CertBytes:   cert.Bytes,
			CertPayload: cert.Payload,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.InsertEntitlement(ctx, tx, &entitlement); err != nil {
			return err
		}

		pool.Consumed += req.Quantity
		pool.UpdatedAt = now
		return s.repo.SavePools(ctx, tx, []*pooldomain.Pool{pool})
	})
	if err != nil {
		return pooldomain.Entitlement{}, err
	}

	s.log.Info("entitlement granted",
		zap.Int64("pool_id", int64(poolID)),
		zap.Int64("consumer_id", int64(consumerID)),
		zap.Int64("quantity", req.Quantity),
	)
	return entitlement, nil
}

func (s *Service) ListEntitlements(ctx context.Context, consumerID string) ([]pooldomain.Entitlement, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return nil, pooldomain.ErrInvalidOwner
	}

	id, err := s.parseID(consumerID, pooldomain.ErrConsumerNotFound)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEntitlementsByConsumer(ctx, s.db, ownerID, id)
}

func (s *Service) GetEntitlement(ctx context.Context, id string) (pooldomain.Entitlement, error) {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return pooldomain.Entitlement{}, pooldomain.ErrInvalidOwner
	}

	entID, err := s.parseID(id, pooldomain.ErrEntitlementNotFound)
	if err != nil {
		return pooldomain.Entitlement{}, err
	}

	entitlement, err := s.repo.FindEntitlementByID(ctx, s.db, ownerID, entID)
	if err != nil {
		return pooldomain.Entitlement{}, err
	}
	if entitlement == nil {
		return pooldomain.Entitlement{}, pooldomain.ErrEntitlementNotFound
	}
	return *entitlement, nil
}

// Revoke removes one entitlement, invalidates its serial and releases its
// quantity back to the pool.
func (s *Service) Revoke(ctx context.Context, entitlementID string) error {
	ownerID, ok := ownerctx.OwnerIDFromContext(ctx)
	if !ok || ownerID == 0 {
		return pooldomain.ErrInvalidOwner
	}

	entID, err := s.parseID(entitlementID, pooldomain.ErrEntitlementNotFound)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entitlement, err := s.repo.FindEntitlementByID(ctx, tx, ownerID, entID)
		if err != nil {
			return err
		}
		if entitlement == nil {
			return pooldomain.ErrEntitlementNotFound
		}

		if err := s.repo.DeleteEntitlements(ctx, tx, ownerID, []snowflake.ID{entID}); err != nil {
			return err
		}
		if err := s.signer.Invalidate(ctx, tx, []int64{entitlement.CertSerial}); err != nil {
			return err
		}

		pool, err := s.repo.FindPoolByIDForUpdate(ctx, tx, ownerID, entitlement.PoolID)
		if err != nil {
			return err
		}
		if pool == nil {
			return nil
		}
		pool.Consumed -= entitlement.Quantity
		if pool.Consumed < 0 {
			pool.Consumed = 0
		}
		pool.UpdatedAt = s.clock.Now()
		return s.repo.SavePools(ctx, tx, []*pooldomain.Pool{pool})
	})
}

func (s *Service) buildPayload(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, pool pooldomain.Pool, existing []pooldomain.Entitlement) (certificate.Payload, error) {
	products, err := s.catalogRepo.ListProducts(ctx, tx, ownerID)
	if err != nil {
		return certificate.Payload{}, err
	}
	content, err := s.catalogRepo.ListContent(ctx, tx, ownerID)
	if err != nil {
		return certificate.Payload{}, err
	}

	productsByID := make(map[string]catalogdomain.Product, len(products))
	for _, product := range products {
		productsByID[product.UpstreamID] = product
	}
	contentByID := make(map[string]catalogdomain.Content, len(content))
	for _, item := range content {
		contentByID[item.UpstreamID] = item
	}

	pools, err := s.repo.ListPools(ctx, tx, ownerID)
	if err != nil {
		return certificate.Payload{}, err
	}
	poolsByID := make(map[snowflake.ID]pooldomain.Pool, len(pools))
	for _, p := range pools {
		poolsByID[p.ID] = p
	}

	// The new grant itself counts toward the held set.
	held := make(map[string]bool)
	for _, productID := range pool.ProductGraph() {
		held[productID] = true
	}
	for _, ent := range existing {
		entPool, ok := poolsByID[ent.PoolID]
		if !ok {
			continue
		}
		for _, productID := range entPool.ProductGraph() {
			held[productID] = true
		}
	}

	return certificate.BuildPayload(pool, productsByID, contentByID, held), nil
}

func consumerHoldsPool(entitlements []pooldomain.Entitlement, poolID snowflake.ID) bool {
	for _, ent := range entitlements {
		if ent.PoolID == poolID {
			return true
		}
	}
	return false
}

func multiEntitlementAllowed(attributes map[string]any) bool {
	value, ok := attributes["multi-entitlement"]
	if !ok {
		return false
	}
	text, ok := value.(string)
	if !ok {
		return false
	}
	return text == "yes" || text == "true" || text == "1"
}

func (s *Service) parseID(raw string, notFound error) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, notFound
	}
	return parsed, nil
}
