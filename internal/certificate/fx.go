package certificate

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/entforge/entforge/internal/clock"
	"github.com/entforge/entforge/internal/config"
)

func provideSigner(cfg config.Config, genID *snowflake.Node, clk clock.Clock) Signer {
	return NewSigner(cfg.SigningSeed, genID, clk)
}

var Module = fx.Module("certificate",
	fx.Provide(provideSigner),
)
