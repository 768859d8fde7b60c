package service

import (
	"context"

	"github.com/smallbiznis/payway/internal/currency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("currency.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Currency, error) {
	return s.repo.List(ctx, s.db, true)
}

func (s *Service) Find(ctx context.Context, code string) (*domain.Currency, error) {
	item, err := s.repo.Find(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsActive {
		return nil, domain.ErrCurrencyNotFound
	}
	return item, nil
}
