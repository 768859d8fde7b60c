package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/payway/internal/promocode/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *domain.PromoCode) error {
	return db.WithContext(ctx).Create(code).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PromoCode, error) {
	var row domain.PromoCode
	err := db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, code string, fields domain.ClaimFields) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PromoCode{}).
		Where("code = ? AND status = ?", code, domain.StatusUnclaimed).
		Updates(map[string]any{
			"status":           domain.StatusClaimed,
			"recipient_wallet": fields.RecipientWallet,
			"payout_method":    fields.PayoutMethod,
			"recipient_email":  fields.RecipientEmail,
			"claimed_ip":       fields.ClaimedIP,
			"claimed_at":       fields.ClaimedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PromoCode{}).
		Where("code = ? AND status = ?", code, domain.StatusUnclaimed).
		Update("status", domain.StatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.PromoCode, error) {
	var rows []domain.PromoCode
	err := db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", domain.StatusUnclaimed, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
