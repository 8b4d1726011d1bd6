package job

import (
	"go.uber.org/fx"
)

var Module = fx.Module("job.runner",
	fx.Provide(NewRunner),
)
