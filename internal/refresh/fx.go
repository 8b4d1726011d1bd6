package refresh

import (
	"go.uber.org/fx"

	"github.com/entforge/entforge/internal/refresh/service"
)

var Module = fx.Module("refresh.service",
	fx.Provide(service.NewService),
)
