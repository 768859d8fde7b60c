package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Provider is a payment provider integrating against the public API. APIKey
// authenticates creation requests; APISecret signs outbound webhooks.
type Provider struct {
	ID             snowflake.ID     `json:"id" gorm:"primaryKey"`
	Name           string           `json:"name" gorm:"type:text;not null"`
	APIKey         string           `json:"api_key" gorm:"type:text;not null;uniqueIndex"`
	APISecret      string           `json:"-" gorm:"type:text;not null"`
	WebhookURL     *string          `json:"webhook_url,omitempty" gorm:"type:text"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty" gorm:"type:numeric(5,4)"`
	IsActive       bool             `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Provider) TableName() string { return "providers" }

var ErrProviderNotFound = errors.New("provider_not_found")

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	FindByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*Provider, error)
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Provider, error)
	// Authenticate resolves an active provider by API key, or
	// ErrProviderNotFound.
	Authenticate(ctx context.Context, apiKey string) (*Provider, error)
}
