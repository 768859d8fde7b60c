package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"gorm.io/gorm"
)

// ExchangeRate is one observed conversion rate between two currencies.
type ExchangeRate struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	FromCurrency string          `json:"from_currency" gorm:"type:text;not null;index:idx_exchange_rates_pair,priority:1"`
	ToCurrency   string          `json:"to_currency" gorm:"type:text;not null;index:idx_exchange_rates_pair,priority:2"`
	Rate         decimal.Decimal `json:"rate" gorm:"type:numeric(20,8);not null"`
	Source       string          `json:"source" gorm:"type:text;not null"`
	Timestamp    time.Time       `json:"timestamp" gorm:"not null;index"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// Quote is a rate snapshot handed to transaction creation.
type Quote struct {
	Rate   decimal.Decimal
	AsOf   time.Time
	Source string
}

var ErrRateUnavailable = errors.New("rate_unavailable")

// Source fetches a fresh rate from an external price API.
type Source interface {
	Name() string
	FetchRate(ctx context.Context, from, to currencydomain.Currency) (decimal.Decimal, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *ExchangeRate) error
	// Latest returns the newest stored rate for the pair, or nil.
	Latest(ctx context.Context, db *gorm.DB, from, to string) (*ExchangeRate, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}

// Provider supplies rate snapshots to the transaction engine.
type Provider interface {
	// GetRate returns a quote no older than the configured max age,
	// or ErrRateUnavailable.
	GetRate(ctx context.Context, from, to string) (Quote, error)
}

// Service adds the scheduler-facing refresh and retention entry points.
type Service interface {
	Provider
	RefreshAll(ctx context.Context) (int, error)
	CleanupOld(ctx context.Context) (int64, error)
}
