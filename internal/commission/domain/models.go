package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionConfig is one configurable commission rate. Scope is global,
// per-currency, per-provider, or provider+currency.
type CommissionConfig struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	CurrencyCode *string         `json:"currency_code,omitempty" gorm:"type:text;index:ux_commission_scope,priority:1"`
	ProviderID   *snowflake.ID   `json:"provider_id,omitempty" gorm:"index:ux_commission_scope,priority:2"`
	Rate         decimal.Decimal `json:"rate" gorm:"type:numeric(5,4);not null"`
	IsGlobal     bool            `json:"is_global" gorm:"not null;default:false"`
	IsActive     bool            `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionConfig) TableName() string { return "commission_configs" }

var (
	ErrInvalidRate = errors.New("invalid_commission_rate")
)

type Repository interface {
	// FindRate returns the active rate for the given scope, or nil.
	FindRate(ctx context.Context, db *gorm.DB, currencyCode *string, providerID *snowflake.ID) (*decimal.Decimal, error)
	FindGlobalRate(ctx context.Context, db *gorm.DB) (*decimal.Decimal, error)
	FindProviderDefaultRate(ctx context.Context, db *gorm.DB, providerID snowflake.ID) (*decimal.Decimal, error)
	Upsert(ctx context.Context, db *gorm.DB, cfg *CommissionConfig) error
}

// Service resolves commission rates for new transactions. Resolution is a
// pure read; mutating configs only affects transactions created afterwards.
type Service interface {
	// Resolve applies the precedence provider+currency > provider >
	// currency > global > configured default.
	Resolve(ctx context.Context, currencyCode string, providerID *snowflake.ID) (decimal.Decimal, error)
	Upsert(ctx context.Context, cfg *CommissionConfig) error
}
