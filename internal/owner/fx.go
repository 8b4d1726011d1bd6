package owner

import (
	"go.uber.org/fx"

	"github.com/entforge/entforge/internal/owner/repository"
	"github.com/entforge/entforge/internal/owner/service"
)

var Module = fx.Module("owner.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
