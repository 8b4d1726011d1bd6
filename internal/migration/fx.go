package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	catalogdomain "github.com/entforge/entforge/internal/catalog/domain"
	"github.com/entforge/entforge/internal/certificate"
	"github.com/entforge/entforge/internal/config"
	jobdomain "github.com/entforge/entforge/internal/job/domain"
	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target Postgres. The sqlite and mysql
		// paths exist for local development and derive the schema from
		// the models instead.
		if cfg.DBType != "postgres" {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate creates the schema from the model definitions.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&ownerdomain.Owner{},
		&catalogdomain.Product{},
		&catalogdomain.Content{},
		&pooldomain.Pool{},
		&pooldomain.Consumer{},
		&pooldomain.Entitlement{},
		&certificate.Serial{},
		&jobdomain.RefreshJob{},
	)
}
