package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/clock"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	"github.com/entforge/entforge/pkg/db"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  ownerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  ownerdomain.Repository
}

func NewService(p ServiceParam) ownerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("owner.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req ownerdomain.CreateRequest) (ownerdomain.Owner, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return ownerdomain.Owner{}, ownerdomain.ErrInvalidKey
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = key
	}

	now := s.clock.Now()
	owner := ownerdomain.Owner{
		ID:          s.genID.Generate(),
		Key:         key,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &owner); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ownerdomain.Owner{}, ownerdomain.ErrDuplicateKey
		}
		return ownerdomain.Owner{}, err
	}

	s.log.Info("owner created", zap.String("owner_key", owner.Key))
	return owner, nil
}

func (s *Service) GetByKey(ctx context.Context, key string) (ownerdomain.Owner, error) {
	owner, err := s.repo.FindByKey(ctx, s.db, strings.TrimSpace(key))
	if err != nil {
		return ownerdomain.Owner{}, err
	}
	if owner == nil {
		return ownerdomain.Owner{}, ownerdomain.ErrOwnerNotFound
	}
	return *owner, nil
}

func (s *Service) List(ctx context.Context) ([]ownerdomain.Owner, error) {
	return s.repo.List(ctx, s.db)
}
