package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/provider/domain"
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

type service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &service{
		db:   p.DB,
		log:  p.Log.Named("provider.service"),
		repo: p.Repo,
	}
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Provider, error) {
	return s.repo.Find(ctx, s.db, id)
}

func (s *service) Authenticate(ctx context.Context, apiKey string) (*domain.Provider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.ErrProviderNotFound
	}
	return s.repo.FindByAPIKey(ctx, s.db, apiKey)
}
