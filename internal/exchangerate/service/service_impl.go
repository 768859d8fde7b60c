package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/config"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"github.com/smallbiznis/payway/internal/exchangerate/domain"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheKeyRate = "rates:%s:%s"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	CurrencySvc currencydomain.Service
	Sources     []domain.Source `group:"rate_sources"`
	Redis       *redis.Client   `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
	Cfg         config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	currencySvc currencydomain.Service
	sources     []domain.Source
	cache       *redis.Client
	metrics     *obsmetrics.Metrics
	maxAge      time.Duration
	cacheTTL    time.Duration
	fetchWait   time.Duration
	retention   int
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("exchangerate.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		currencySvc: p.CurrencySvc,
		sources:     p.Sources,
		cache:       p.Redis,
		metrics:     p.Metrics,
		maxAge:      p.Cfg.Rates.MaxAge,
		cacheTTL:    p.Cfg.Rates.CacheTTL,
		fetchWait:   p.Cfg.Rates.FetchTimeout,
		retention:   p.Cfg.Rates.RetentionDays,
	}
}

func (s *Service) GetRate(ctx context.Context, from, to string) (domain.Quote, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	now := s.clock.Now()

	if from == to {
		return domain.Quote{Rate: decimal.NewFromInt(1), AsOf: now, Source: "identity"}, nil
	}

	if quote, ok := s.cachedRate(ctx, from, to, now); ok {
		return quote, nil
	}

	latest, err := s.repo.Latest(ctx, s.db, from, to)
	if err != nil {
		return domain.Quote{}, err
	}
	if latest != nil && now.Sub(latest.Timestamp) <= s.maxAge {
		quote := domain.Quote{Rate: latest.Rate, AsOf: latest.Timestamp, Source: latest.Source}
		s.storeCache(ctx, from, to, quote)
		return quote, nil
	}

	quote, err := s.fetchAndStore(ctx, from, to)
	if err != nil {
		s.log.Warn("rate lookup failed",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return domain.Quote{}, domain.ErrRateUnavailable
	}
	return quote, nil
}

func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	currencies, err := s.currencySvc.List(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	var errs error
	for _, from := range currencies {
		for _, to := range currencies {
			if from.Code == to.Code {
				continue
			}
			if _, err := s.fetchAndStore(ctx, from.Code, to.Code); err != nil {
				errs = errors.Join(errs, fmt.Errorf("%s->%s: %w", from.Code, to.Code, err))
				continue
			}
			updated++
		}
	}

	s.log.Info("exchange rates refreshed", zap.Int("updated", updated))
	return updated, errs
}

func (s *Service) CleanupOld(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.retention)
	removed, err := s.repo.DeleteOlderThan(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("old exchange rates removed", zap.Int64("count", removed))
	}
	return removed, nil
}

func (s *Service) fetchAndStore(ctx context.Context, from, to string) (domain.Quote, error) {
	fromCurrency, err := s.currencySvc.Find(ctx, from)
	if err != nil {
		return domain.Quote{}, err
	}
	toCurrency, err := s.currencySvc.Find(ctx, to)
	if err != nil {
		return domain.Quote{}, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchWait)
	defer cancel()

	var errs error
	for _, source := range s.sources {
		rate, err := source.FetchRate(fetchCtx, *fromCurrency, *toCurrency)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", source.Name(), err))
			continue
		}
		if rate.IsZero() || rate.IsNegative() {
			errs = errors.Join(errs, fmt.Errorf("%s: non-positive rate", source.Name()))
			continue
		}

		now := s.clock.Now()
		record := &domain.ExchangeRate{
			ID:           s.genID.Generate(),
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         rate,
			Source:       source.Name(),
			Timestamp:    now,
		}
		if err := s.repo.Insert(ctx, s.db, record); err != nil {
			return domain.Quote{}, err
		}

		quote := domain.Quote{Rate: rate, AsOf: now, Source: source.Name()}
		s.storeCache(ctx, from, to, quote)
		s.metrics.RecordRateRefresh(ctx, source.Name())
		return quote, nil
	}

	if errs == nil {
		errs = errors.New("no rate sources configured")
	}
	return domain.Quote{}, errs
}

func (s *Service) cachedRate(ctx context.Context, from, to string, now time.Time) (domain.Quote, bool) {
	if s.cache == nil {
		return domain.Quote{}, false
	}
	raw, err := s.cache.Get(ctx, fmt.Sprintf(cacheKeyRate, from, to)).Result()
	if err != nil {
		return domain.Quote{}, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return domain.Quote{}, false
	}
	return domain.Quote{Rate: rate, AsOf: now, Source: "cache"}, true
}

func (s *Service) storeCache(ctx context.Context, from, to string, quote domain.Quote) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, fmt.Sprintf(cacheKeyRate, from, to), quote.Rate.String(), s.cacheTTL).Err(); err != nil {
		s.log.Debug("rate cache write failed", zap.Error(err))
	}
}
