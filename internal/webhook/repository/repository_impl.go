package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.WebhookDelivery) error {
	return db.WithContext(ctx).Create(d).Error
}

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	query := db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit)

	// sqlite has no row locks; there the scheduler lock is the only sweeper
	// guard.
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []domain.WebhookDelivery
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) RecordOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, outcome domain.Outcome) error {
	updates := map[string]any{
		"attempts":   attempts,
		"updated_at": time.Now().UTC(),
	}
	switch {
	case outcome.DeliveredAt != nil:
		updates["status"] = domain.StatusDelivered
		updates["delivered_at"] = *outcome.DeliveredAt
	case outcome.Exhausted:
		updates["status"] = domain.StatusExhausted
	default:
		updates["next_retry_at"] = outcome.NextRetryAt
	}
	if outcome.StatusCode != nil {
		updates["last_status_code"] = *outcome.StatusCode
	}
	if outcome.Err != "" {
		updates["last_error"] = outcome.Err
	}

	return db.WithContext(ctx).
		Model(&domain.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &d, nil
}
