package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/entforge/entforge/internal/catalog"
	"github.com/entforge/entforge/internal/certificate"
	"github.com/entforge/entforge/internal/clock"
	"github.com/entforge/entforge/internal/config"
	"github.com/entforge/entforge/internal/job"
	"github.com/entforge/entforge/internal/logger"
	"github.com/entforge/entforge/internal/migration"
	"github.com/entforge/entforge/internal/owner"
	"github.com/entforge/entforge/internal/pool"
	"github.com/entforge/entforge/internal/refresh"
	"github.com/entforge/entforge/internal/server"
	"github.com/entforge/entforge/internal/upstream"
	"github.com/entforge/entforge/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		owner.Module,
		catalog.Module,
		certificate.Module,
		upstream.Module,
		pool.Module,
		refresh.Module,
		job.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
