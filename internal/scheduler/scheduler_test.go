package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/clock"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
	"github.com/smallbiznis/payway/internal/scheduler"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubRates struct {
	refreshes int
	cleanups  int
	err       error
}

func (s *stubRates) GetRate(context.Context, string, string) (exchangedomain.Quote, error) {
	return exchangedomain.Quote{Rate: decimal.New(1, 0)}, nil
}

func (s *stubRates) RefreshAll(context.Context) (int, error) {
	s.refreshes++
	return 3, s.err
}

func (s *stubRates) CleanupOld(context.Context) (int64, error) {
	s.cleanups++
	return 0, nil
}

type stubPromo struct {
	sweeps int
}

func (s *stubPromo) Redeem(context.Context, promodomain.RedeemRequest) (*transactiondomain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPromo) Info(context.Context, string) (*promodomain.PromoCode, error) {
	return nil, promodomain.ErrCodeNotFound
}

func (s *stubPromo) SweepExpired(context.Context, time.Time) (int, error) {
	s.sweeps++
	return 0, nil
}

type stubTxns struct {
	sweeps int
}

func (s *stubTxns) Create(context.Context, transactiondomain.CreateRequest) (*transactiondomain.CreateResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTxns) Get(context.Context, snowflake.ID) (*transactiondomain.Transaction, error) {
	return nil, transactiondomain.ErrNotFound
}

func (s *stubTxns) ClaimTx(context.Context, *gorm.DB, snowflake.ID) (*transactiondomain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTxns) MarkSettled(context.Context, snowflake.ID, string) error { return nil }
func (s *stubTxns) MarkFailed(context.Context, snowflake.ID, string) error  { return nil }
func (s *stubTxns) Expire(context.Context, snowflake.ID) error              { return nil }

func (s *stubTxns) SweepExpired(context.Context, time.Time) (int, error) {
	s.sweeps++
	return 0, nil
}

type stubWebhooks struct {
	sweeps int
	err    error
}

func (s *stubWebhooks) Sweep(context.Context, time.Time) (int, error) {
	s.sweeps++
	return 0, s.err
}

type fixture struct {
	sched    *scheduler.Scheduler
	clk      *clock.FakeClock
	rates    *stubRates
	promo    *stubPromo
	txns     *stubTxns
	webhooks *stubWebhooks
}

func newFixture(t *testing.T, cfg scheduler.Config) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	f := &fixture{
		clk:      clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		rates:    &stubRates{},
		promo:    &stubPromo{},
		txns:     &stubTxns{},
		webhooks: &stubWebhooks{},
	}

	f.sched, err = scheduler.New(scheduler.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      f.clk,
		Config:     cfg,
		RatesSvc:   f.rates,
		PromoSvc:   f.promo,
		TxnSvc:     f.txns,
		WebhookSvc: f.webhooks,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return f
}

func TestRunOnceRunsEveryJobWhenDue(t *testing.T) {
	f := newFixture(t, scheduler.DefaultConfig())
	ctx := context.Background()

	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if f.rates.refreshes != 1 {
		t.Fatalf("refresh_rates ran %d times", f.rates.refreshes)
	}
	if f.promo.sweeps != 1 || f.txns.sweeps != 1 {
		t.Fatalf("expire_codes swept codes=%d txns=%d", f.promo.sweeps, f.txns.sweeps)
	}
	if f.webhooks.sweeps != 1 {
		t.Fatalf("webhook_retries ran %d times", f.webhooks.sweeps)
	}
	if f.rates.cleanups != 1 {
		t.Fatalf("cleanup_rates ran %d times", f.rates.cleanups)
	}

	// Nothing is due again yet.
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.rates.refreshes != 1 || f.webhooks.sweeps != 1 {
		t.Fatal("jobs ran again before their interval elapsed")
	}
}

func TestRunOncePerJobCadence(t *testing.T) {
	f := newFixture(t, scheduler.DefaultConfig())
	ctx := context.Background()

	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// 30s later only the webhook sweep is due again.
	f.clk.Advance(30 * time.Second)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if f.webhooks.sweeps != 2 {
		t.Fatalf("webhook_retries ran %d times", f.webhooks.sweeps)
	}
	if f.rates.refreshes != 1 || f.promo.sweeps != 1 {
		t.Fatal("slower jobs ran early")
	}

	// Another minute brings the expiry sweep due; rates still wait.
	f.clk.Advance(time.Minute)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if f.promo.sweeps != 2 || f.txns.sweeps != 2 {
		t.Fatalf("expire_codes swept codes=%d txns=%d", f.promo.sweeps, f.txns.sweeps)
	}
	if f.rates.refreshes != 1 {
		t.Fatalf("refresh_rates ran %d times", f.rates.refreshes)
	}

	f.clk.Advance(5 * time.Minute)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if f.rates.refreshes != 2 {
		t.Fatalf("refresh_rates ran %d times", f.rates.refreshes)
	}
	if f.rates.cleanups != 1 {
		t.Fatalf("cleanup_rates ran %d times before its day elapsed", f.rates.cleanups)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	cfg.EnabledJobs = []string{"webhook_retries"}
	f := newFixture(t, cfg)

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if f.webhooks.sweeps != 1 {
		t.Fatalf("webhook_retries ran %d times", f.webhooks.sweeps)
	}
	if f.rates.refreshes != 0 || f.promo.sweeps != 0 || f.rates.cleanups != 0 {
		t.Fatal("disabled jobs ran")
	}
}

func TestRunOnceReportsJobErrors(t *testing.T) {
	f := newFixture(t, scheduler.DefaultConfig())
	f.webhooks.err = errors.New("sweep blew up")

	err := f.sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "webhook_retries") {
		t.Fatalf("error does not name the job: %v", err)
	}

	// Other jobs still ran despite the failure.
	if f.rates.refreshes != 1 || f.promo.sweeps != 1 {
		t.Fatal("a failing job starved its siblings")
	}
}

func TestDeadlineIsSoftFailure(t *testing.T) {
	f := newFixture(t, scheduler.DefaultConfig())
	f.rates.err = context.DeadlineExceeded

	// A timed-out job is logged and retried next tick, never surfaced.
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("deadline should not surface: %v", err)
	}
}
