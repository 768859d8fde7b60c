package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"gorm.io/gorm"
)

type PromoCodeStatus string

const (
	StatusUnclaimed PromoCodeStatus = "unclaimed"
	StatusClaimed   PromoCodeStatus = "claimed"
	StatusExpired   PromoCodeStatus = "expired"
)

// PromoCode is a one-time claim token bound to a transaction. Claimed and
// expired codes are retained as audit records, never deleted.
type PromoCode struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	TransactionID snowflake.ID    `json:"transaction_id" gorm:"not null;uniqueIndex"`
	Code          string          `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Status        PromoCodeStatus `json:"status" gorm:"type:text;not null;index"`
	ClaimURL      string          `json:"claim_url" gorm:"type:text;not null"`
	QRCodePNG     string          `json:"qr_code_png" gorm:"type:text"`

	RecipientWallet *string `json:"recipient_wallet,omitempty" gorm:"type:text"`
	PayoutMethod    *string `json:"payout_method,omitempty" gorm:"type:text"`
	RecipientEmail  *string `json:"recipient_email,omitempty" gorm:"type:text"`

	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	ClaimedIP *string    `json:"claimed_ip,omitempty" gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
}

func (PromoCode) TableName() string { return "promo_codes" }

var (
	ErrCodeNotFound       = errors.New("code_not_found")
	ErrCodeExpired        = errors.New("code_expired")
	ErrCodeAlreadyClaimed = errors.New("code_already_claimed")
)

type RedeemRequest struct {
	Code            string
	RecipientWallet string
	PayoutMethod    string
	RecipientEmail  *string
	ClaimedIP       string
}

type ClaimFields struct {
	RecipientWallet string
	PayoutMethod    string
	RecipientEmail  *string
	ClaimedIP       string
	ClaimedAt       time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, code *PromoCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	// Claim is the compare-and-set. Only a row still unclaimed matches, so
	// exactly one concurrent caller wins.
	Claim(ctx context.Context, db *gorm.DB, code string, fields ClaimFields) (bool, error)
	// MarkExpired flips unclaimed to expired with the same CAS discipline.
	MarkExpired(ctx context.Context, db *gorm.DB, code string) (bool, error)
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]PromoCode, error)
}

type Service interface {
	// Redeem atomically claims the code and transitions its transaction, then
	// executes the payout. Losers of the claim race get ErrCodeAlreadyClaimed.
	Redeem(ctx context.Context, req RedeemRequest) (*transactiondomain.Transaction, error)
	Info(ctx context.Context, code string) (*PromoCode, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
