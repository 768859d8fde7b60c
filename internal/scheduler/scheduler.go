package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/payway/internal/clock"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	webhookdomain "github.com/smallbiznis/payway/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     Config  `optional:"true"`
	Locker     *Locker `optional:"true"`
	RatesSvc   exchangedomain.Service
	PromoSvc   promodomain.Service
	TxnSvc     transactiondomain.Service
	WebhookSvc webhookdomain.Service
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	locker     *Locker
	ratesSvc   exchangedomain.Service
	promoSvc   promodomain.Service
	txnSvc     transactiondomain.Service
	webhookSvc webhookdomain.Service

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.RatesSvc == nil || p.PromoSvc == nil || p.TxnSvc == nil || p.WebhookSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		locker:     p.Locker,
		ratesSvc:   p.RatesSvc,
		promoSvc:   p.PromoSvc,
		txnSvc:     p.TxnSvc,
		webhookSvc: p.WebhookSvc,
		lastRun:    make(map[string]time.Time),
	}, nil
}

// runJob bounds the job with a timeout, takes the cross-instance lock, and
// records job health metrics. A deadline is a soft timeout: the next tick
// picks the remaining work back up.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()

	if s.locker != nil {
		key := "payway:scheduler:" + name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !ok {
			schedMetrics.IncJobSkip(name)
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("lock release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	schedMetrics.IncJobRun(name)
	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job that has come due. Safe to call from
// multiple instances; the lock and the jobs' own CAS discipline keep the
// work idempotent.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Every   time.Duration
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{"refresh_rates", s.cfg.RefreshRatesEvery, 60 * time.Second, s.RefreshRatesJob},
		{"expire_codes", s.cfg.ExpireCodesEvery, 30 * time.Second, s.ExpireCodesJob},
		{"webhook_retries", s.cfg.WebhookRetriesEvery, 60 * time.Second, s.WebhookRetriesJob},
		{"cleanup_rates", s.cfg.CleanupRatesEvery, 5 * time.Minute, s.CleanupRatesJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if !s.markDue(job.Name, job.Every) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RefreshRatesJob(ctx context.Context) error {
	refreshed, err := s.ratesSvc.RefreshAll(ctx)
	if refreshed > 0 {
		s.log.Info("rates refreshed", zap.Int("pairs", refreshed))
	}
	return err
}

func (s *Scheduler) ExpireCodesJob(ctx context.Context) error {
	now := s.clock.Now().UTC()

	expiredCodes, codeErr := s.promoSvc.SweepExpired(ctx, now)
	// Transactions that never reached awaiting_claim have no code to sweep.
	expiredTxns, txnErr := s.txnSvc.SweepExpired(ctx, now)

	if expiredCodes > 0 || expiredTxns > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int("codes", expiredCodes),
			zap.Int("transactions", expiredTxns),
		)
	}
	return errors.Join(codeErr, txnErr)
}

func (s *Scheduler) WebhookRetriesJob(ctx context.Context) error {
	attempted, err := s.webhookSvc.Sweep(ctx, s.clock.Now().UTC())
	if attempted > 0 {
		s.log.Info("webhook sweep finished", zap.Int("attempted", attempted))
	}
	return err
}

func (s *Scheduler) CleanupRatesJob(ctx context.Context) error {
	deleted, err := s.ratesSvc.CleanupOld(ctx)
	if deleted > 0 {
		s.log.Info("old rates pruned", zap.Int64("rows", deleted))
	}
	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// markDue reports whether the job's interval has elapsed and records the run
// time when it has.
func (s *Scheduler) markDue(name string, every time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	last, ok := s.lastRun[name]
	if ok && now.Sub(last) < every {
		return false
	}
	s.lastRun[name] = now
	return true
}
