package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/entforge/entforge/internal/config"
	jobdomain "github.com/entforge/entforge/internal/job/domain"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	ownerSvc   ownerdomain.Service
	poolSvc    pooldomain.Service
	refreshSvc refreshdomain.Service
	jobs       jobdomain.Runner
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	OwnerSvc   ownerdomain.Service
	PoolSvc    pooldomain.Service
	RefreshSvc refreshdomain.Service
	Jobs       jobdomain.Runner
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		ownerSvc:   p.OwnerSvc,
		poolSvc:    p.PoolSvc,
		refreshSvc: p.RefreshSvc,
		jobs:       p.Jobs,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Owners --------
	api.GET("/owners", s.ListOwners)
	api.POST("/owners", s.CreateOwner)
	api.GET("/owners/:owner_key", s.GetOwnerByKey)

	// -------- Refresh --------
	api.POST("/owners/:owner_key/refresh", s.RefreshOwner)
	api.GET("/jobs/:id", s.GetJobByID)

	// -------- Pools --------
	owner := api.Group("/owners/:owner_key", s.OwnerContext())
	owner.GET("/pools", s.ListPools)
	owner.GET("/pools/:id", s.GetPoolByID)

	// -------- Consumers --------
	owner.POST("/consumers", s.CreateConsumer)
	owner.GET("/consumers/:id/entitlements", s.ListEntitlements)

	// -------- Entitlements --------
	owner.POST("/entitlements", s.ConsumePool)
	owner.GET("/entitlements/:id", s.GetEntitlementByID)
	owner.DELETE("/entitlements/:id", s.RevokeEntitlement)
}
