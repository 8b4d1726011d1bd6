package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/certificate"
	catalogrepository "github.com/entforge/entforge/internal/catalog/repository"
	"github.com/entforge/entforge/internal/clock"
	"github.com/entforge/entforge/internal/migration"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	ownerrepository "github.com/entforge/entforge/internal/owner/repository"
	"github.com/entforge/entforge/internal/ownerctx"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	poolrepository "github.com/entforge/entforge/internal/pool/repository"
	poolservice "github.com/entforge/entforge/internal/pool/service"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
	"github.com/entforge/entforge/internal/upstream/memory"
)

type testEnv struct {
	t *testing.T

	db       *gorm.DB
	clock    *clock.FakeClock
	upstream *memory.Adapter
	signer   certificate.Signer
	genID    *snowflake.Node
	poolRepo pooldomain.Repository

	svc     refreshdomain.Service
	poolSvc pooldomain.Service

	owner ownerdomain.Owner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection so every session sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	adapter := memory.New()
	signer := certificate.NewSigner("test-seed", node, clk)

	ownerRepo := ownerrepository.Provide()
	poolRepo := poolrepository.Provide()
	catalogRepo := catalogrepository.Provide()

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Adapter:     adapter,
		Signer:      signer,
		OwnerRepo:   ownerRepo,
		PoolRepo:    poolRepo,
		CatalogRepo: catalogRepo,
	})

	poolSvc := poolservice.NewService(poolservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        poolRepo,
		CatalogRepo: catalogRepo,
		Signer:      signer,
	})

	env := &testEnv{
		t:        t,
		db:       db,
		clock:    clk,
		upstream: adapter,
		signer:   signer,
		genID:    node,
		poolRepo: poolRepo,
		svc:      svc,
		poolSvc:  poolSvc,
	}
	env.owner = env.createOwner("acme")
	return env
}

func (e *testEnv) createOwner(key string) ownerdomain.Owner {
	e.t.Helper()
	owner := ownerdomain.Owner{
		ID:          e.genID.Generate(),
		Key:         key,
		DisplayName: key,
		CreatedAt:   e.clock.Now(),
		UpdatedAt:   e.clock.Now(),
	}
	require.NoError(e.t, e.db.Create(&owner).Error)
	return owner
}

func (e *testEnv) ownerCtx() context.Context {
	return ownerctx.WithOwnerID(context.Background(), e.owner.ID)
}

func (e *testEnv) putProduct(id, name string, attrs map[string]string, contentIDs ...string) {
	e.upstream.PutProduct(upstreamdomain.Product{
		ID:         id,
		Name:       name,
		Attributes: attrs,
		ContentIDs: contentIDs,
	})
}

func (e *testEnv) putContent(id, label string, modifies ...string) {
	e.upstream.PutContent(upstreamdomain.Content{
		ID:                 id,
		Label:              label,
		ContentURL:         "/content/" + id,
		ModifiedProductIDs: modifies,
	})
}

func (e *testEnv) putSubscription(id, ownerKey, productID string, quantity int64) {
	e.upstream.PutSubscription(upstreamdomain.Subscription{
		ID:        id,
		OwnerKey:  ownerKey,
		ProductID: productID,
		Quantity:  quantity,
		StartDate: e.clock.Now().Add(-24 * time.Hour),
		EndDate:   e.clock.Now().Add(365 * 24 * time.Hour),
	})
}

func (e *testEnv) mustRefresh(ownerKey string, force bool) refreshdomain.RefreshResult {
	e.t.Helper()
	result, err := e.svc.Refresh(context.Background(), ownerKey, force)
	require.NoError(e.t, err)
	return result
}

func (e *testEnv) pools(ownerID snowflake.ID) []pooldomain.Pool {
	e.t.Helper()
	pools, err := e.poolRepo.ListPools(context.Background(), e.db, ownerID)
	require.NoError(e.t, err)
	return pools
}

func (e *testEnv) poolBySubscription(subID string) pooldomain.Pool {
	e.t.Helper()
	for _, pool := range e.pools(e.owner.ID) {
		if pool.SubscriptionID == subID {
			return pool
		}
	}
	e.t.Fatalf("no pool for subscription %s", subID)
	return pooldomain.Pool{}
}

func (e *testEnv) createConsumer(name string) pooldomain.Consumer {
	e.t.Helper()
	consumer, err := e.poolSvc.CreateConsumer(e.ownerCtx(), pooldomain.CreateConsumerRequest{Name: name})
	require.NoError(e.t, err)
	return consumer
}

func (e *testEnv) consume(consumerID, poolID snowflake.ID, quantity int64) pooldomain.Entitlement {
	e.t.Helper()
	ent, err := e.poolSvc.Consume(e.ownerCtx(), pooldomain.ConsumeRequest{
		PoolID:     poolID.String(),
		ConsumerID: consumerID.String(),
		Quantity:   quantity,
	})
	require.NoError(e.t, err)
	return ent
}

func (e *testEnv) entitlement(id snowflake.ID) *pooldomain.Entitlement {
	e.t.Helper()
	ent, err := e.poolRepo.FindEntitlementByID(context.Background(), e.db, e.owner.ID, id)
	require.NoError(e.t, err)
	return ent
}

func TestRefresh_CreatesPoolsFromSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "2"})
	env.putSubscription("sub-1", "acme", "prod-os", 10)

	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.PoolsCreated)
	assert.Equal(t, 0, result.PoolsDeleted)

	pools := env.pools(env.owner.ID)
	require.Len(t, pools, 1)
	assert.Equal(t, "sub-1", pools[0].SubscriptionID)
	assert.Equal(t, "prod-os", pools[0].ProductID)
	assert.Equal(t, int64(10), pools[0].Quantity)
	assert.Equal(t, int64(0), pools[0].Consumed)
	assert.Equal(t, "2", pools[0].ProductAttributes["sockets"])
}

func TestRefresh_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "2"}, "cnt-os")
	env.putContent("cnt-os", "os-repo")
	env.putSubscription("sub-1", "acme", "prod-os", 10)

	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	pool := env.poolBySubscription("sub-1")
	ent := env.consume(consumer.ID, pool.ID, 1)

	second := env.mustRefresh("acme", false)

	assert.Equal(t, 0, second.PoolsCreated)
	assert.Equal(t, 0, second.PoolsUpdated)
	assert.Equal(t, 0, second.PoolsDeleted)
	assert.Equal(t, 1, second.PoolsUnchanged)
	assert.Equal(t, 0, second.CertsRegenerated)
	assert.Equal(t, 0, second.EntitlementsRevoked)

	after := env.entitlement(ent.ID)
	require.NotNil(t, after)
	assert.Equal(t, ent.CertSerial, after.CertSerial)
}

func TestRefresh_UnknownOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Refresh(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ownerdomain.ErrOwnerNotFound)
}

func TestRefresh_FetchFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	env.upstream.DeleteSubscription("sub-1")
	env.upstream.FailNextFetch(upstreamdomain.ErrFetchFailed)

	_, err := env.svc.Refresh(context.Background(), "acme", false)
	assert.ErrorIs(t, err, upstreamdomain.ErrFetchFailed)

	// The failed run must not have applied the deletion it never saw.
	assert.Len(t, env.pools(env.owner.ID), 1)
}

func TestRefresh_RemovedSubscriptionDeletesPoolAndEntitlements(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	pool := env.poolBySubscription("sub-1")
	ent := env.consume(consumer.ID, pool.ID, 1)

	env.upstream.DeleteSubscription("sub-1")
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.PoolsDeleted)
	assert.Equal(t, 1, result.EntitlementsRevoked)
	assert.Empty(t, env.pools(env.owner.ID))
	assert.Nil(t, env.entitlement(ent.ID))

	_, err := env.signer.Decode(context.Background(), env.db, ent.CertBytes)
	assert.ErrorIs(t, err, certificate.ErrSerialRevoked)
}

func TestRefresh_ExpiredSubscriptionDeletesPool(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.upstream.PutSubscription(upstreamdomain.Subscription{
		ID:        "sub-1",
		OwnerKey:  "acme",
		ProductID: "prod-os",
		Quantity:  5,
		StartDate: env.clock.Now().Add(-24 * time.Hour),
		EndDate:   env.clock.Now().Add(30 * 24 * time.Hour),
	})
	env.mustRefresh("acme", false)
	require.Len(t, env.pools(env.owner.ID), 1)

	env.clock.Advance(60 * 24 * time.Hour)
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.PoolsDeleted)
	assert.Empty(t, env.pools(env.owner.ID))
}

func TestRefresh_QuantityReductionRevokesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"multi-entitlement": "yes"})
	env.putSubscription("sub-1", "acme", "prod-os", 3)
	env.mustRefresh("acme", false)

	pool := env.poolBySubscription("sub-1")
	older := env.createConsumer("host-old")
	entOld := env.consume(older.ID, pool.ID, 2)

	env.clock.Advance(time.Minute)
	newer := env.createConsumer("host-new")
	entNew := env.consume(newer.ID, pool.ID, 1)

	env.putSubscription("sub-1", "acme", "prod-os", 2)
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.EntitlementsRevoked)
	assert.Equal(t, []snowflake.ID{entNew.ID}, result.RevokedEntitlementIDs)
	assert.Nil(t, env.entitlement(entNew.ID))
	assert.NotNil(t, env.entitlement(entOld.ID))

	after := env.poolBySubscription("sub-1")
	assert.Equal(t, int64(2), after.Quantity)
	assert.Equal(t, int64(2), after.Consumed)
}

func TestRefresh_QuantityIncreaseDoesNotTouchCertificates(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-1", "acme", "prod-os", 2)
	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	pool := env.poolBySubscription("sub-1")
	ent := env.consume(consumer.ID, pool.ID, 1)

	env.putSubscription("sub-1", "acme", "prod-os", 20)
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.PoolsUpdated)
	assert.Equal(t, 0, result.CertsRegenerated)
	assert.Equal(t, 0, result.EntitlementsRevoked)

	after := env.entitlement(ent.ID)
	require.NotNil(t, after)
	assert.Equal(t, ent.CertSerial, after.CertSerial)
	assert.Equal(t, int64(20), env.poolBySubscription("sub-1").Quantity)
}

func TestRefresh_ProductChangeRotatesSerials(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "2"})
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	pool := env.poolBySubscription("sub-1")
	ent := env.consume(consumer.ID, pool.ID, 1)

	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "4"})
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.CertsRegenerated)
	assert.Equal(t, []snowflake.ID{ent.ID}, result.RegeneratedEntitlementIDs)

	after := env.entitlement(ent.ID)
	require.NotNil(t, after)
	assert.NotEqual(t, ent.CertSerial, after.CertSerial)

	// The old serial is dead, the new certificate verifies.
	_, err := env.signer.Decode(context.Background(), env.db, ent.CertBytes)
	assert.ErrorIs(t, err, certificate.ErrSerialRevoked)
	payload, err := env.signer.Decode(context.Background(), env.db, after.CertBytes)
	require.NoError(t, err)
	require.Len(t, payload.Products, 1)
	assert.Equal(t, "4", payload.Products[0].Attributes["sockets"])
}

func TestRefresh_ContentChangePropagatesThroughModifiesEdges(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-base", "Base", nil)
	env.putProduct("prod-eng", "Engineering", nil, "cnt-eng")
	env.putContent("cnt-eng", "eng-repo", "prod-base")
	env.putSubscription("sub-base", "acme", "prod-base", 10)
	env.putSubscription("sub-eng", "acme", "prod-eng", 10)
	env.mustRefresh("acme", false)

	basePool := env.poolBySubscription("sub-base")
	engPool := env.poolBySubscription("sub-eng")

	// devbox holds both products; it binds engineering first so the base
	// certificate is issued with cnt-eng already visible.
	devbox := env.createConsumer("devbox")
	devEng := env.consume(devbox.ID, engPool.ID, 1)
	devBase := env.consume(devbox.ID, basePool.ID, 1)

	// plain holds only the base product and never sees cnt-eng.
	plain := env.createConsumer("plain")
	plainBase := env.consume(plain.ID, basePool.ID, 1)

	env.putContent("cnt-eng", "eng-repo-renamed", "prod-base")
	result := env.mustRefresh("acme", false)

	assert.Equal(t, 2, result.CertsRegenerated)
	assert.ElementsMatch(t, []snowflake.ID{devBase.ID, devEng.ID}, result.RegeneratedEntitlementIDs)

	assert.NotEqual(t, devBase.CertSerial, env.entitlement(devBase.ID).CertSerial)
	assert.NotEqual(t, devEng.CertSerial, env.entitlement(devEng.ID).CertSerial)
	assert.Equal(t, plainBase.CertSerial, env.entitlement(plainBase.ID).CertSerial)

	payload, err := env.signer.Decode(context.Background(), env.db, env.entitlement(devBase.ID).CertBytes)
	require.NoError(t, err)
	require.Len(t, payload.Products, 1)
	require.Len(t, payload.Products[0].Content, 1)
	assert.Equal(t, "eng-repo-renamed", payload.Products[0].Content[0].Label)
}

func TestRefresh_RemovedModifiesEdgeDropsContent(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-base", "Base", nil)
	env.putProduct("prod-eng", "Engineering", nil, "cnt-eng")
	env.putContent("cnt-eng", "eng-repo", "prod-base")
	env.putSubscription("sub-base", "acme", "prod-base", 10)
	env.putSubscription("sub-eng", "acme", "prod-eng", 10)
	env.mustRefresh("acme", false)

	devbox := env.createConsumer("devbox")
	env.consume(devbox.ID, env.poolBySubscription("sub-eng").ID, 1)
	devBase := env.consume(devbox.ID, env.poolBySubscription("sub-base").ID, 1)

	// Drop the modifies edge entirely. The base certificate was built with
	// cnt-eng visible, so it must be rebuilt without it.
	env.putContent("cnt-eng", "eng-repo")
	env.mustRefresh("acme", false)

	payload, err := env.signer.Decode(context.Background(), env.db, env.entitlement(devBase.ID).CertBytes)
	require.NoError(t, err)
	require.Len(t, payload.Products, 1)
	assert.Empty(t, payload.Products[0].Content)
	assert.NotEqual(t, devBase.CertSerial, env.entitlement(devBase.ID).CertSerial)
}

func TestRefresh_ForceRegeneratesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"multi-entitlement": "yes"})
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	pool := env.poolBySubscription("sub-1")
	c1 := env.createConsumer("host-1")
	c2 := env.createConsumer("host-2")
	ent1 := env.consume(c1.ID, pool.ID, 1)
	ent2 := env.consume(c2.ID, pool.ID, 1)

	result := env.mustRefresh("acme", true)

	assert.Equal(t, 2, result.CertsRegenerated)
	assert.NotEqual(t, ent1.CertSerial, env.entitlement(ent1.ID).CertSerial)
	assert.NotEqual(t, ent2.CertSerial, env.entitlement(ent2.ID).CertSerial)
}

func TestRefresh_SkipsInconsistentSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-ok", "acme", "prod-os", 5)
	env.upstream.PutSubscription(upstreamdomain.Subscription{
		ID:                 "sub-broken",
		OwnerKey:           "acme",
		ProductID:          "prod-os",
		ProvidedProductIDs: []string{"prod-missing"},
		Quantity:           5,
		StartDate:          env.clock.Now().Add(-24 * time.Hour),
		EndDate:            env.clock.Now().Add(365 * 24 * time.Hour),
	})

	result := env.mustRefresh("acme", false)

	assert.Equal(t, 1, result.PoolsCreated)
	assert.Equal(t, []string{"sub-broken"}, result.SkippedSubscriptions)

	pools := env.pools(env.owner.ID)
	require.Len(t, pools, 1)
	assert.Equal(t, "sub-ok", pools[0].SubscriptionID)
}

func TestRefresh_MigrationIsTwoPhase(t *testing.T) {
	env := newTestEnv(t)
	other := env.createOwner("globex")

	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	ent := env.consume(consumer.ID, env.poolBySubscription("sub-1").ID, 1)

	// Upstream migrates the subscription to the other owner.
	env.putSubscription("sub-1", "globex", "prod-os", 5)

	// Refreshing the destination creates its pool without touching the
	// source owner's state.
	destResult := env.mustRefresh("globex", false)
	assert.Equal(t, 1, destResult.PoolsCreated)
	assert.Len(t, env.pools(env.owner.ID), 1)
	assert.Len(t, env.pools(other.ID), 1)
	assert.NotNil(t, env.entitlement(ent.ID))

	// Refreshing the source completes the migration.
	srcResult := env.mustRefresh("acme", false)
	assert.Equal(t, 1, srcResult.PoolsDeleted)
	assert.Equal(t, 1, srcResult.EntitlementsRevoked)
	assert.Empty(t, env.pools(env.owner.ID))
	assert.Len(t, env.pools(other.ID), 1)
	assert.Nil(t, env.entitlement(ent.ID))
}

// faultySigner delegates to a real signer but fails a set number of Issue
// calls first.
type faultySigner struct {
	certificate.Signer
	failures int
}

func (f *faultySigner) Issue(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, payload certificate.Payload) (certificate.Certificate, error) {
	if f.failures > 0 {
		f.failures--
		return certificate.Certificate{}, certificate.ErrSigningFailed
	}
	return f.Signer.Issue(ctx, db, ownerID, payload)
}

func TestRefresh_SigningFailureIsReportedNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "2"})
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	consumer := env.createConsumer("host-1")
	ent := env.consume(consumer.ID, env.poolBySubscription("sub-1").ID, 1)

	faulty := &faultySigner{Signer: env.signer, failures: 1}
	svc := NewService(ServiceParam{
		DB:          env.db,
		Log:         zap.NewNop(),
		GenID:       env.genID,
		Clock:       env.clock,
		Adapter:     env.upstream,
		Signer:      faulty,
		OwnerRepo:   ownerrepository.Provide(),
		PoolRepo:    env.poolRepo,
		CatalogRepo: catalogrepository.Provide(),
	})

	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "4"})
	result, err := svc.Refresh(context.Background(), "acme", false)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CertsRegenerated)
	assert.Equal(t, []snowflake.ID{ent.ID}, result.FailedRegenerations)
	assert.Equal(t, 1, result.PoolsUpdated)

	// The previous certificate is untouched and still verifies.
	after := env.entitlement(ent.ID)
	require.NotNil(t, after)
	assert.Equal(t, ent.CertSerial, after.CertSerial)
	_, err = env.signer.Decode(context.Background(), env.db, after.CertBytes)
	require.NoError(t, err)

	// A forced run with a healthy signer reissues the stale certificate.
	retry := env.mustRefresh("acme", true)
	assert.Equal(t, 1, retry.CertsRegenerated)
	assert.Empty(t, retry.FailedRegenerations)
}

func TestRefresh_OwnerIsolationForSharedProductIDs(t *testing.T) {
	env := newTestEnv(t)
	other := env.createOwner("globex")

	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "2"})
	env.putSubscription("sub-acme", "acme", "prod-os", 5)
	env.putSubscription("sub-globex", "globex", "prod-os", 5)
	env.mustRefresh("acme", false)
	env.mustRefresh("globex", false)

	otherCtx := ownerctx.WithOwnerID(context.Background(), other.ID)
	otherPools := env.pools(other.ID)
	require.Len(t, otherPools, 1)
	otherConsumer, err := env.poolSvc.CreateConsumer(otherCtx, pooldomain.CreateConsumerRequest{Name: "globex-host"})
	require.NoError(t, err)
	otherEnt, err := env.poolSvc.Consume(otherCtx, pooldomain.ConsumeRequest{
		PoolID:     otherPools[0].ID.String(),
		ConsumerID: otherConsumer.ID.String(),
		Quantity:   1,
	})
	require.NoError(t, err)

	// Mutate the shared product and acme's subscription, then refresh only
	// acme.
	env.putProduct("prod-os", "Operating System", map[string]string{"sockets": "8"})
	env.putSubscription("sub-acme", "acme", "prod-os", 3)
	env.mustRefresh("acme", false)

	afterPools := env.pools(other.ID)
	require.Len(t, afterPools, 1)
	assert.Equal(t, "2", afterPools[0].ProductAttributes["sockets"])
	assert.Equal(t, int64(5), afterPools[0].Quantity)

	afterEnt, err := env.poolRepo.FindEntitlementByID(context.Background(), env.db, other.ID, otherEnt.ID)
	require.NoError(t, err)
	require.NotNil(t, afterEnt)
	assert.Equal(t, otherEnt.CertSerial, afterEnt.CertSerial)

	// globex picks the product change up on its own refresh.
	globexResult := env.mustRefresh("globex", false)
	assert.Equal(t, 1, globexResult.CertsRegenerated)
}

func TestRefresh_RevocationRebuildsSurvivorCertificates(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-base", "Base", nil)
	env.putProduct("prod-eng", "Engineering", nil, "cnt-eng")
	env.putContent("cnt-eng", "eng-repo", "prod-base")
	env.putSubscription("sub-base", "acme", "prod-base", 10)
	env.putSubscription("sub-eng", "acme", "prod-eng", 1)
	env.mustRefresh("acme", false)

	// devbox binds engineering first so its base certificate is issued
	// with cnt-eng cross-visible.
	devbox := env.createConsumer("devbox")
	devEng := env.consume(devbox.ID, env.poolBySubscription("sub-eng").ID, 1)
	devBase := env.consume(devbox.ID, env.poolBySubscription("sub-base").ID, 1)

	// Shrinking the engineering pool revokes devbox's engineering grant.
	// The surviving base certificate no longer has a held product backing
	// cnt-eng and must be rebuilt without it.
	env.putSubscription("sub-eng", "acme", "prod-eng", 0)
	result := env.mustRefresh("acme", false)

	assert.Equal(t, []snowflake.ID{devEng.ID}, result.RevokedEntitlementIDs)
	assert.Equal(t, []snowflake.ID{devBase.ID}, result.RegeneratedEntitlementIDs)

	after := env.entitlement(devBase.ID)
	require.NotNil(t, after)
	assert.NotEqual(t, devBase.CertSerial, after.CertSerial)

	payload, err := env.signer.Decode(context.Background(), env.db, after.CertBytes)
	require.NoError(t, err)
	require.Len(t, payload.Products, 1)
	assert.Empty(t, payload.Products[0].Content)
}

func TestRefresh_WrapsPipelineErrors(t *testing.T) {
	env := newTestEnv(t)
	env.putProduct("prod-os", "Operating System", nil)
	env.putSubscription("sub-1", "acme", "prod-os", 5)
	env.mustRefresh("acme", false)

	env.upstream.FailNextFetch(errors.New("boom"))
	_, err := env.svc.Refresh(context.Background(), "acme", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, refreshdomain.ErrRefreshFailed)
}
