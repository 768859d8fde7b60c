package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/payway/internal/clock"
	"github.com/smallbiznis/payway/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/payway/internal/payout/domain"
	"github.com/smallbiznis/payway/internal/promocode/domain"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Repo         domain.Repository
	Transactions transactiondomain.Service
	Payouts      payoutdomain.Dispatcher
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         domain.Repository
	transactions transactiondomain.Service
	payouts      payoutdomain.Dispatcher
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("promocode.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		transactions: p.Transactions,
		payouts:      p.Payouts,
		metrics:      p.Metrics,
	}
}

func (s *service) Info(ctx context.Context, code string) (*domain.PromoCode, error) {
	return s.repo.FindByCode(ctx, s.db, code)
}

// Redeem claims the code and transitions its transaction in one DB
// transaction, then executes the payout. The conditional update on the code
// row decides the winner; every other caller observes ErrCodeAlreadyClaimed
// or ErrCodeExpired, never a partial state.
func (s *service) Redeem(ctx context.Context, req domain.RedeemRequest) (*transactiondomain.Transaction, error) {
	row, err := s.repo.FindByCode(ctx, s.db, req.Code)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if now.After(row.ExpiresAt) {
		if err := s.expireCode(ctx, row); err != nil {
			return nil, err
		}
		s.metrics.RecordClaim(ctx, "expired")
		return nil, domain.ErrCodeExpired
	}

	var claimed *transactiondomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.Claim(ctx, tx, req.Code, domain.ClaimFields{
			RecipientWallet: req.RecipientWallet,
			PayoutMethod:    req.PayoutMethod,
			RecipientEmail:  req.RecipientEmail,
			ClaimedIP:       req.ClaimedIP,
			ClaimedAt:       now,
		})
		if err != nil {
			return err
		}
		if !won {
			current, err := s.repo.FindByCode(ctx, tx, req.Code)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusExpired {
				return domain.ErrCodeExpired
			}
			return domain.ErrCodeAlreadyClaimed
		}

		claimed, err = s.transactions.ClaimTx(ctx, tx, row.TransactionID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCodeAlreadyClaimed) {
			s.metrics.RecordClaim(ctx, "already_claimed")
		}
		return nil, err
	}

	s.metrics.RecordClaim(ctx, "claimed")
	s.log.Info("code redeemed",
		zap.String("transaction_id", claimed.ID.String()),
		zap.String("payout_method", req.PayoutMethod),
	)

	result, err := s.payouts.Execute(ctx, payoutdomain.Request{
		TransactionID:   claimed.ID,
		Amount:          claimed.NetAmount,
		Currency:        claimed.DestCurrency,
		RecipientWallet: req.RecipientWallet,
		Method:          req.PayoutMethod,
	})
	if err != nil {
		if failErr := s.transactions.MarkFailed(ctx, claimed.ID, err.Error()); failErr != nil {
			s.log.Error("mark failed after payout error",
				zap.String("transaction_id", claimed.ID.String()),
				zap.Error(failErr),
			)
		}
		return nil, fmt.Errorf("%w: %s", transactiondomain.ErrPayoutFailed, err.Error())
	}

	if err := s.transactions.MarkSettled(ctx, claimed.ID, result.Reference); err != nil {
		return nil, err
	}
	return s.transactions.Get(ctx, claimed.ID)
}

// SweepExpired expires stale unclaimed codes and their transactions. Racing
// redeems are safe: the code CAS decides, and a code claimed between the scan
// and the update is simply skipped.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.repo.ListExpired(ctx, s.db, now, 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range rows {
		if err := s.expireCode(ctx, &rows[i]); err != nil {
			s.log.Warn("expire code failed",
				zap.String("code", rows[i].Code),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *service) expireCode(ctx context.Context, row *domain.PromoCode) error {
	flipped, err := s.repo.MarkExpired(ctx, s.db, row.Code)
	if err != nil {
		return err
	}
	if !flipped {
		// A concurrent redeem won, or another sweep got here first.
		return nil
	}
	return s.transactions.Expire(ctx, row.TransactionID)
}
