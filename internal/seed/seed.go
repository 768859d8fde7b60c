package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/payway/internal/commission/domain"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"gorm.io/gorm"
)

var defaultGlobalRate = decimal.NewFromFloat(0.05)

var defaultCurrencies = []currencydomain.Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$", DecimalPlaces: 2, IsActive: true},
	{Code: "EUR", Name: "Euro", Symbol: "€", DecimalPlaces: 2, IsActive: true},
	{Code: "IDR", Name: "Indonesian Rupiah", Symbol: "Rp", DecimalPlaces: 0, IsActive: true},
	{Code: "USDT", Name: "Tether", Symbol: "USDT", IsCrypto: true, DecimalPlaces: 6, IsActive: true},
	{Code: "BTC", Name: "Bitcoin", Symbol: "BTC", IsCrypto: true, DecimalPlaces: 8, IsActive: true},
	{Code: "ETH", Name: "Ethereum", Symbol: "ETH", IsCrypto: true, DecimalPlaces: 8, IsActive: true},
}

// EnsureDefaults seeds the currency catalog and the global commission rate so
// a fresh install can take transactions immediately. Existing rows are left
// untouched.
func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCurrenciesTx(ctx, tx); err != nil {
			return err
		}
		return ensureGlobalCommissionTx(ctx, tx, node)
	})
}

func ensureCurrenciesTx(ctx context.Context, tx *gorm.DB) error {
	for _, cur := range defaultCurrencies {
		var count int64
		if err := tx.WithContext(ctx).
			Model(&currencydomain.Currency{}).
			Where("code = ?", cur.Code).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := tx.WithContext(ctx).Create(&cur).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureGlobalCommissionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&commissiondomain.CommissionConfig{}).
		Where("is_global = ?", true).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return tx.WithContext(ctx).Create(&commissiondomain.CommissionConfig{
		ID:       node.Generate(),
		Rate:     defaultGlobalRate,
		IsGlobal: true,
		IsActive: true,
	}).Error
}
