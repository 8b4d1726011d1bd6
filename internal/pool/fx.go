package pool

import (
	"go.uber.org/fx"

	"github.com/entforge/entforge/internal/pool/repository"
	"github.com/entforge/entforge/internal/pool/service"
)

var Module = fx.Module("pool.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
