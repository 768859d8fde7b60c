package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/clock"
	commissiondomain "github.com/smallbiznis/payway/internal/commission/domain"
	"github.com/smallbiznis/payway/internal/config"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	"github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Config      config.Config
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Currencies  currencydomain.Service
	Rates       exchangedomain.Provider
	Commissions commissiondomain.Service
	Issuer      domain.CodeIssuer
	Publisher   domain.EventPublisher
	Metrics     *metrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	cfg         config.Config
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	currencies  currencydomain.Service
	rates       exchangedomain.Provider
	commissions commissiondomain.Service
	issuer      domain.CodeIssuer
	publisher   domain.EventPublisher
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:          p.DB,
		cfg:         p.Config,
		log:         p.Log.Named("transaction.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		currencies:  p.Currencies,
		rates:       p.Rates,
		commissions: p.Commissions,
		issuer:      p.Issuer,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
	}
}

// Create validates the request, snapshots the rate and commission, and
// persists the transaction together with its claim code and outbox events in
// a single DB transaction. Nothing is externally visible on failure.
func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResult, error) {
	if !req.SourceAmount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	source, err := s.currencies.Find(ctx, req.SourceCurrency)
	if err != nil {
		if errors.Is(err, currencydomain.ErrCurrencyNotFound) {
			return nil, domain.ErrUnsupportedCurrency
		}
		return nil, err
	}
	dest, err := s.currencies.Find(ctx, req.DestCurrency)
	if err != nil {
		if errors.Is(err, currencydomain.ErrCurrencyNotFound) {
			return nil, domain.ErrUnsupportedCurrency
		}
		return nil, err
	}

	quote, err := s.rates.GetRate(ctx, source.Code, dest.Code)
	if err != nil {
		return nil, err
	}

	rate, err := s.commissions.Resolve(ctx, source.Code, req.ProviderID)
	if err != nil {
		return nil, err
	}

	breakdown := commissiondomain.ComputeNet(req.SourceAmount, rate, quote.Rate, dest.DecimalPlaces)

	now := s.clock.Now().UTC()
	t := &domain.Transaction{
		ID:               s.genID.Generate(),
		ProviderID:       req.ProviderID,
		ContactEmail:     req.ContactEmail,
		SourceCurrency:   source.Code,
		DestCurrency:     dest.Code,
		SourceAmount:     req.SourceAmount,
		ExchangeRate:     quote.Rate,
		ConvertedAmount:  breakdown.ConvertedAmount,
		CommissionRate:   breakdown.CommissionRate,
		CommissionAmount: breakdown.CommissionAmount,
		NetAmount:        breakdown.NetAmount,
		Status:           domain.StatusCreated,
		ExpiresAt:        now.Add(s.cfg.Promo.TTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var issued *domain.IssuedCode
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := s.logTransition(ctx, tx, t.ID, "", domain.StatusCreated, ""); err != nil {
			return err
		}
		if err := s.publisher.PublishTx(ctx, tx, t, domain.EventPaymentCreated); err != nil {
			return fmt.Errorf("publish created: %w", err)
		}

		issued, err = s.issuer.IssueTx(ctx, tx, t)
		if err != nil {
			return fmt.Errorf("issue code: %w", err)
		}

		ok, err := s.repo.UpdateStatus(ctx, tx, t.ID,
			[]domain.TransactionStatus{domain.StatusCreated},
			domain.StatusAwaitingClaim, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		t.Status = domain.StatusAwaitingClaim
		if err := s.logTransition(ctx, tx, t.ID, domain.StatusCreated, domain.StatusAwaitingClaim, ""); err != nil {
			return err
		}
		return s.publisher.PublishTx(ctx, tx, t, domain.EventPaymentAwaitingClaim)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransaction(ctx, string(domain.StatusAwaitingClaim))
	s.log.Info("transaction created",
		zap.String("transaction_id", t.ID.String()),
		zap.String("source_currency", t.SourceCurrency),
		zap.String("dest_currency", t.DestCurrency),
		zap.String("net_amount", t.NetAmount.String()),
	)

	return &domain.CreateResult{Transaction: t, Code: *issued}, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	return s.repo.Find(ctx, s.db, id)
}

func (s *service) ClaimTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	ok, err := s.repo.UpdateStatus(ctx, tx, id,
		[]domain.TransactionStatus{domain.StatusAwaitingClaim},
		domain.StatusClaimed, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	if err := s.logTransition(ctx, tx, id, domain.StatusAwaitingClaim, domain.StatusClaimed, ""); err != nil {
		return nil, err
	}

	t, err := s.repo.Find(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.PublishTx(ctx, tx, t, domain.EventPaymentClaimed); err != nil {
		return nil, err
	}

	s.metrics.RecordTransaction(ctx, string(domain.StatusClaimed))
	return t, nil
}

func (s *service) MarkSettled(ctx context.Context, id snowflake.ID, payoutReference string) error {
	now := s.clock.Now().UTC()
	err := s.transition(ctx, id,
		[]domain.TransactionStatus{domain.StatusClaimed},
		domain.StatusSettled,
		map[string]any{"completed_at": now, "payout_reference": payoutReference},
		domain.EventPaymentSettled,
		"",
	)
	if err != nil {
		return err
	}

	s.metrics.RecordTransaction(ctx, string(domain.StatusSettled))
	s.log.Info("transaction settled",
		zap.String("transaction_id", id.String()),
		zap.String("payout_reference", payoutReference),
	)
	return nil
}

func (s *service) MarkFailed(ctx context.Context, id snowflake.ID, reason string) error {
	err := s.transition(ctx, id,
		[]domain.TransactionStatus{domain.StatusClaimed},
		domain.StatusFailed,
		map[string]any{"failure_reason": reason},
		domain.EventPaymentFailed,
		reason,
	)
	if err != nil {
		return err
	}

	s.metrics.RecordTransaction(ctx, string(domain.StatusFailed))
	s.log.Warn("transaction failed",
		zap.String("transaction_id", id.String()),
		zap.String("reason", reason),
	)
	return nil
}

func (s *service) Expire(ctx context.Context, id snowflake.ID) error {
	t, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}
	if s.clock.Now().UTC().Before(t.ExpiresAt) {
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateStatus(ctx, tx, id,
			[]domain.TransactionStatus{domain.StatusCreated, domain.StatusAwaitingClaim},
			domain.StatusExpired, nil)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with a claim or another sweep. Idempotent no-op.
			return nil
		}
		if err := s.logTransition(ctx, tx, id, t.Status, domain.StatusExpired, ""); err != nil {
			return err
		}
		t.Status = domain.StatusExpired
		return s.publisher.PublishTx(ctx, tx, t, domain.EventPaymentExpired)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTransaction(ctx, string(domain.StatusExpired))
	return nil
}

func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.repo.ListExpired(ctx, s.db, now, 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range rows {
		if err := s.Expire(ctx, rows[i].ID); err != nil {
			s.log.Warn("expire failed",
				zap.String("transaction_id", rows[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// transition runs a single conditional status update plus its log and outbox
// rows in one DB transaction.
func (s *service) transition(ctx context.Context, id snowflake.ID, from []domain.TransactionStatus, to domain.TransactionStatus, extra map[string]any, event, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateStatus(ctx, tx, id, from, to, extra)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.repo.Find(ctx, tx, id); err != nil {
				return err
			}
			return domain.ErrInvalidTransition
		}
		if err := s.logTransition(ctx, tx, id, from[0], to, note); err != nil {
			return err
		}

		t, err := s.repo.Find(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.publisher.PublishTx(ctx, tx, t, event)
	})
}

func (s *service) logTransition(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to domain.TransactionStatus, note string) error {
	return s.repo.InsertLog(ctx, tx, &domain.TransactionLog{
		ID:            s.genID.Generate(),
		TransactionID: id,
		FromStatus:    from,
		ToStatus:      to,
		Note:          note,
		CreatedAt:     s.clock.Now().UTC(),
	})
}
