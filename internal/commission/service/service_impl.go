package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/commission/domain"
	"github.com/smallbiznis/payway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Log    *zap.Logger
	Repo   domain.Repository
}

type service struct {
	db   *gorm.DB
	cfg  config.Config
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &service{
		db:   p.DB,
		cfg:  p.Config,
		log:  p.Log.Named("commission.service"),
		repo: p.Repo,
	}
}

// Resolve walks the scope chain from most to least specific and returns the
// first active rate. Falls back to the configured default when no row matches.
func (s *service) Resolve(ctx context.Context, currencyCode string, providerID *snowflake.ID) (decimal.Decimal, error) {
	if providerID != nil {
		rate, err := s.repo.FindRate(ctx, s.db, &currencyCode, providerID)
		if err != nil {
			return decimal.Zero, err
		}
		if rate != nil {
			return *rate, nil
		}

		rate, err = s.repo.FindRate(ctx, s.db, nil, providerID)
		if err != nil {
			return decimal.Zero, err
		}
		if rate != nil {
			return *rate, nil
		}

		rate, err = s.repo.FindProviderDefaultRate(ctx, s.db, *providerID)
		if err != nil {
			return decimal.Zero, err
		}
		if rate != nil {
			return *rate, nil
		}
	}

	rate, err := s.repo.FindRate(ctx, s.db, &currencyCode, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if rate != nil {
		return *rate, nil
	}

	rate, err = s.repo.FindGlobalRate(ctx, s.db)
	if err != nil {
		return decimal.Zero, err
	}
	if rate != nil {
		return *rate, nil
	}

	s.log.Debug("no commission config matched, using default",
		zap.String("currency", currencyCode),
		zap.String("default_rate", s.cfg.Fees.DefaultRate.String()),
	)
	return s.cfg.Fees.DefaultRate, nil
}

func (s *service) Upsert(ctx context.Context, cfg *domain.CommissionConfig) error {
	if cfg.Rate.IsNegative() || cfg.Rate.GreaterThan(s.cfg.Fees.MaxRate) {
		return domain.ErrInvalidRate
	}
	if cfg.IsGlobal {
		cfg.CurrencyCode = nil
		cfg.ProviderID = nil
	}
	return s.repo.Upsert(ctx, s.db, cfg)
}
