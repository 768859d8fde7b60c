package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	StatusCreated       TransactionStatus = "created"
	StatusAwaitingClaim TransactionStatus = "awaiting_claim"
	StatusClaimed       TransactionStatus = "claimed"
	StatusSettled       TransactionStatus = "settled"
	StatusExpired       TransactionStatus = "expired"
	StatusFailed        TransactionStatus = "failed"
)

// Terminal reports whether no transition may leave the status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Events emitted on committed transitions.
const (
	EventPaymentCreated       = "payment_created"
	EventPaymentAwaitingClaim = "payment_awaiting_claim"
	EventPaymentClaimed       = "payment_claimed"
	EventPaymentSettled       = "payment_settled"
	EventPaymentExpired       = "payment_expired"
	EventPaymentFailed        = "payment_failed"
)

// Transaction is one payment from creation to settlement. The financial
// columns are frozen at creation and never recomputed from current config.
type Transaction struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	ProviderID     *snowflake.ID `json:"provider_id,omitempty" gorm:"index"`
	ContactEmail   *string       `json:"contact_email,omitempty" gorm:"type:text"`
	SourceCurrency string        `json:"source_currency" gorm:"type:text;not null"`
	DestCurrency   string        `json:"dest_currency" gorm:"type:text;not null"`

	SourceAmount     decimal.Decimal `json:"source_amount" gorm:"type:numeric(20,8);not null"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate" gorm:"type:numeric(20,8);not null"`
	ConvertedAmount  decimal.Decimal `json:"converted_amount" gorm:"type:numeric(20,8);not null"`
	CommissionRate   decimal.Decimal `json:"commission_rate" gorm:"type:numeric(5,4);not null"`
	CommissionAmount decimal.Decimal `json:"commission_amount" gorm:"type:numeric(20,8);not null"`
	NetAmount        decimal.Decimal `json:"net_amount" gorm:"type:numeric(20,8);not null"`

	Status          TransactionStatus `json:"status" gorm:"type:text;not null;index"`
	PayoutReference *string           `json:"payout_reference,omitempty" gorm:"type:text"`
	FailureReason   *string           `json:"failure_reason,omitempty" gorm:"type:text"`

	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null;index"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionLog is an append-only audit row per committed transition.
type TransactionLog struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	TransactionID snowflake.ID      `json:"transaction_id" gorm:"not null;index"`
	FromStatus    TransactionStatus `json:"from_status" gorm:"type:text;not null"`
	ToStatus      TransactionStatus `json:"to_status" gorm:"type:text;not null"`
	Note          string            `json:"note" gorm:"type:text"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TransactionLog) TableName() string { return "transaction_logs" }

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrNotFound            = errors.New("transaction_not_found")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrPayoutFailed        = errors.New("payout_failed")
)

type CreateRequest struct {
	SourceAmount   decimal.Decimal
	SourceCurrency string
	DestCurrency   string
	ProviderID     *snowflake.ID
	ContactEmail   *string
}

// IssuedCode is what the code registry hands back when a transaction is
// created.
type IssuedCode struct {
	Code      string
	ClaimURL  string
	QRCodePNG string
	ExpiresAt time.Time
}

// CreateResult pairs the persisted transaction with its single claim code.
type CreateResult struct {
	Transaction *Transaction
	Code        IssuedCode
}

// CodeIssuer issues exactly one claim code bound to the transaction, inside
// the caller's DB transaction.
type CodeIssuer interface {
	IssueTx(ctx context.Context, tx *gorm.DB, t *Transaction) (*IssuedCode, error)
}

// EventPublisher records an outbox delivery for a committed transition, inside
// the caller's DB transaction so the event and the state change share fate.
type EventPublisher interface {
	PublishTx(ctx context.Context, tx *gorm.DB, t *Transaction, event string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, t *Transaction) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	// UpdateStatus performs the conditional transition. Returns false when no
	// row matched (id, one of from), which callers treat as a lost race or an
	// invalid transition.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []TransactionStatus, to TransactionStatus, extra map[string]any) (bool, error)
	InsertLog(ctx context.Context, db *gorm.DB, l *TransactionLog) error
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Transaction, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Transaction, error)
	// ClaimTx moves awaiting_claim to claimed inside the caller's DB
	// transaction. The redemption path calls this while it holds the code CAS.
	ClaimTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Transaction, error)
	MarkSettled(ctx context.Context, id snowflake.ID, payoutReference string) error
	MarkFailed(ctx context.Context, id snowflake.ID, reason string) error
	// Expire is sweep-only. A terminal transaction is a no-op, not an error.
	Expire(ctx context.Context, id snowflake.ID) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
