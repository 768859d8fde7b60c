package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/payway/internal/currency/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Currency, error) {
	var currencies []domain.Currency
	query := db.WithContext(ctx).Order("code")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&currencies).Error; err != nil {
		return nil, err
	}
	return currencies, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, code string) (*domain.Currency, error) {
	var item domain.Currency
	err := db.WithContext(ctx).Raw(
		`SELECT code, name, symbol, is_crypto, is_active, decimal_places, created_at, updated_at
		 FROM currencies
		 WHERE code = ?
		 LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Code == "" {
		return nil, nil
	}
	return &item, nil
}
