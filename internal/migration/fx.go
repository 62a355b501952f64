package migration

import (
	"github.com/zek/abone/internal/config"
	subscriptiondomain "github.com/zek/abone/internal/subscription/domain"
	usagedomain "github.com/zek/abone/internal/usage/domain"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations are written for postgres; other
		// dialects (sqlite in tests and local mysql setups) derive the
		// schema from the models.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&walletdomain.Wallet{},
				&walletdomain.Transaction{},
				&subscriptiondomain.Subscription{},
				&usagedomain.SubscriptionUsage{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
