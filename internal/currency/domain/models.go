package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Currency is a supported fiat or crypto currency.
type Currency struct {
	Code          string    `json:"code" gorm:"primaryKey;type:text"`
	Name          string    `json:"name" gorm:"type:text;not null"`
	Symbol        string    `json:"symbol" gorm:"type:text"`
	IsCrypto      bool      `json:"is_crypto" gorm:"not null;default:false"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true"`
	DecimalPlaces int32     `json:"decimal_places" gorm:"not null;default:2"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Currency) TableName() string { return "currencies" }

var ErrCurrencyNotFound = errors.New("currency_not_found")

type Repository interface {
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Currency, error)
	Find(ctx context.Context, db *gorm.DB, code string) (*Currency, error)
}

type Service interface {
	List(ctx context.Context) ([]Currency, error)
	// Find returns the active currency for code, or ErrCurrencyNotFound.
	Find(ctx context.Context, code string) (*Currency, error)
}
