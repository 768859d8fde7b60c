package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payway/internal/exchangerate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.ExchangeRate) error {
	return db.WithContext(ctx).Create(rate).Error
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, from, to string) (*domain.ExchangeRate, error) {
	var item domain.ExchangeRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, from_currency, to_currency, rate, source, timestamp
		 FROM exchange_rates
		 WHERE from_currency = ? AND to_currency = ?
		 ORDER BY timestamp DESC
		 LIMIT 1`,
		from,
		to,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM exchange_rates WHERE timestamp < ?`,
		cutoff,
	)
	return result.RowsAffected, result.Error
}
