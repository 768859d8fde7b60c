package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/commission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRate(ctx context.Context, db *gorm.DB, currencyCode *string, providerID *snowflake.ID) (*decimal.Decimal, error) {
	query := db.WithContext(ctx).
		Table("commission_configs").
		Select("rate").
		Where("is_active = ?", true).
		Where("is_global = ?", false)

	if currencyCode != nil {
		query = query.Where("currency_code = ?", *currencyCode)
	} else {
		query = query.Where("currency_code IS NULL")
	}
	if providerID != nil {
		query = query.Where("provider_id = ?", *providerID)
	} else {
		query = query.Where("provider_id IS NULL")
	}

	var rates []decimal.Decimal
	if err := query.Order("updated_at DESC").Limit(1).Scan(&rates).Error; err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}

func (r *repo) FindGlobalRate(ctx context.Context, db *gorm.DB) (*decimal.Decimal, error) {
	var rates []decimal.Decimal
	err := db.WithContext(ctx).Raw(
		`SELECT rate
		 FROM commission_configs
		 WHERE is_global = ? AND is_active = ?
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		true,
		true,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}

func (r *repo) FindProviderDefaultRate(ctx context.Context, db *gorm.DB, providerID snowflake.ID) (*decimal.Decimal, error) {
	var rates []decimal.Decimal
	err := db.WithContext(ctx).Raw(
		`SELECT commission_rate
		 FROM providers
		 WHERE id = ? AND is_active = ? AND commission_rate IS NOT NULL
		 LIMIT 1`,
		providerID,
		true,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *domain.CommissionConfig) error {
	return db.WithContext(ctx).Save(cfg).Error
}
