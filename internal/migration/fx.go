package migration

import (
	commissiondomain "github.com/smallbiznis/payway/internal/commission/domain"
	"github.com/smallbiznis/payway/internal/config"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	"github.com/smallbiznis/payway/internal/seed"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	webhookdomain "github.com/smallbiznis/payway/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned DDL is postgres-only. Other drivers are local
			// setups and take the schema from the models.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.EnsureDefaults(conn)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&currencydomain.Currency{},
		&exchangedomain.ExchangeRate{},
		&providerdomain.Provider{},
		&commissiondomain.CommissionConfig{},
		&transactiondomain.Transaction{},
		&transactiondomain.TransactionLog{},
		&promodomain.PromoCode{},
		&webhookdomain.WebhookDelivery{},
	)
}
