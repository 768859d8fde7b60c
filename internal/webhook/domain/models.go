package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusExhausted DeliveryStatus = "exhausted"
)

// WebhookDelivery is one outbox row. It is written in the same DB transaction
// as the state change it announces, and swept asynchronously.
type WebhookDelivery struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	TransactionID    snowflake.ID   `json:"transaction_id" gorm:"not null;index"`
	ProviderID       snowflake.ID   `json:"provider_id" gorm:"not null;index"`
	Event            string         `json:"event" gorm:"type:text;not null"`
	URL              string         `json:"url" gorm:"type:text;not null"`
	Payload          datatypes.JSON `json:"payload" gorm:"not null"`
	IdempotencyToken string         `json:"idempotency_token" gorm:"type:text;not null"`

	Status         DeliveryStatus `json:"status" gorm:"type:text;not null;index:idx_webhook_deliveries_due,priority:1"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	NextRetryAt    time.Time      `json:"next_retry_at" gorm:"not null;index:idx_webhook_deliveries_due,priority:2"`
	LastStatusCode *int           `json:"last_status_code,omitempty"`
	LastError      *string        `json:"last_error,omitempty" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

var ErrDeliveryExhausted = errors.New("delivery_exhausted")

// EventPayload is the body POSTed to the provider. The idempotency token lets
// the receiver deduplicate the at-least-once deliveries.
type EventPayload struct {
	TransactionID    string    `json:"transaction_id"`
	Event            string    `json:"event"`
	Status           string    `json:"status"`
	NetAmount        string    `json:"net_amount"`
	Currency         string    `json:"currency"`
	Timestamp        time.Time `json:"timestamp"`
	IdempotencyToken string    `json:"idempotency_token"`
}

// Transport performs the outbound call. Swapped in tests.
type Transport interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (int, error)
}

type Outcome struct {
	StatusCode  *int
	Err         string
	NextRetryAt time.Time
	Exhausted   bool
	DeliveredAt *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *WebhookDelivery) error
	// ClaimDue returns pending rows whose retry time has passed, locked
	// against concurrent sweepers where the dialect supports it.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]WebhookDelivery, error)
	RecordOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, outcome Outcome) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WebhookDelivery, error)
}

type Service interface {
	// Sweep attempts every due pending delivery once. Re-entrant and
	// idempotent per tick.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
