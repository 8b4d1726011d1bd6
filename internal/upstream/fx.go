package upstream

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/entforge/entforge/internal/config"
	upstreamdomain "github.com/entforge/entforge/internal/upstream/domain"
	"github.com/entforge/entforge/internal/upstream/httpclient"
	"github.com/entforge/entforge/internal/upstream/memory"
)

// NewAdapter picks the upstream adapter: a hosted subscription service when
// UPSTREAM_BASE_URL is set, the in-memory simulator otherwise.
func NewAdapter(cfg config.Config, log *zap.Logger) upstreamdomain.Adapter {
	if cfg.UpstreamBaseURL != "" {
		log.Info("using hosted upstream", zap.String("base_url", cfg.UpstreamBaseURL))
		return httpclient.New(cfg.UpstreamBaseURL)
	}
	log.Warn("no upstream configured, using in-memory simulator")
	return memory.New()
}

var Module = fx.Module("upstream",
	fx.Provide(NewAdapter),
)
