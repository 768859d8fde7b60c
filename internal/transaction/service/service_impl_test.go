package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/clock"
	commissiondomain "github.com/smallbiznis/payway/internal/commission/domain"
	"github.com/smallbiznis/payway/internal/config"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	"github.com/smallbiznis/payway/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/payway/internal/transaction/repository"
	transactionservice "github.com/smallbiznis/payway/internal/transaction/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE transactions (
			id BIGINT PRIMARY KEY,
			provider_id BIGINT,
			contact_email TEXT,
			source_currency TEXT NOT NULL,
			dest_currency TEXT NOT NULL,
			source_amount NUMERIC(20,8) NOT NULL,
			exchange_rate NUMERIC(20,8) NOT NULL,
			converted_amount NUMERIC(20,8) NOT NULL,
			commission_rate NUMERIC(5,4) NOT NULL,
			commission_amount NUMERIC(20,8) NOT NULL,
			net_amount NUMERIC(20,8) NOT NULL,
			status TEXT NOT NULL,
			payout_reference TEXT,
			failure_reason TEXT,
			expires_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE transaction_logs (
			id BIGINT PRIMARY KEY,
			transaction_id BIGINT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type stubCurrencies struct{}

func (stubCurrencies) List(context.Context) ([]currencydomain.Currency, error) {
	return nil, nil
}

func (stubCurrencies) Find(_ context.Context, code string) (*currencydomain.Currency, error) {
	switch code {
	case "USD":
		return &currencydomain.Currency{Code: "USD", DecimalPlaces: 2, IsActive: true}, nil
	case "USDT":
		return &currencydomain.Currency{Code: "USDT", IsCrypto: true, DecimalPlaces: 6, IsActive: true}, nil
	}
	return nil, currencydomain.ErrCurrencyNotFound
}

type stubRates struct {
	rate decimal.Decimal
	err  error
}

func (s *stubRates) GetRate(_ context.Context, _, _ string) (exchangedomain.Quote, error) {
	if s.err != nil {
		return exchangedomain.Quote{}, s.err
	}
	return exchangedomain.Quote{Rate: s.rate, AsOf: time.Now().UTC(), Source: "test"}, nil
}

type stubCommissions struct {
	rate decimal.Decimal
}

func (s *stubCommissions) Resolve(context.Context, string, *snowflake.ID) (decimal.Decimal, error) {
	return s.rate, nil
}

func (s *stubCommissions) Upsert(context.Context, *commissiondomain.CommissionConfig) error {
	return nil
}

type stubIssuer struct {
	calls int
}

func (s *stubIssuer) IssueTx(_ context.Context, _ *gorm.DB, t *domain.Transaction) (*domain.IssuedCode, error) {
	s.calls++
	return &domain.IssuedCode{
		Code:      fmt.Sprintf("CODE%d", s.calls),
		ClaimURL:  "http://localhost/claim/CODE",
		ExpiresAt: t.ExpiresAt,
	}, nil
}

type stubPublisher struct {
	events []string
}

func (s *stubPublisher) PublishTx(_ context.Context, _ *gorm.DB, _ *domain.Transaction, event string) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	clk       *clock.FakeClock
	rates     *stubRates
	comms     *stubCommissions
	issuer    *stubIssuer
	publisher *stubPublisher
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	f := &fixture{
		db:        setupTestDB(t),
		clk:       clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		rates:     &stubRates{rate: decimal.RequireFromString("0.999")},
		comms:     &stubCommissions{rate: decimal.RequireFromString("0.05")},
		issuer:    &stubIssuer{},
		publisher: &stubPublisher{},
	}
	f.svc = transactionservice.New(transactionservice.Params{
		DB:  f.db,
		Log: zap.NewNop(),
		Config: config.Config{
			Promo: config.PromoConfig{TTL: 24 * time.Hour, CodeLength: 20},
		},
		GenID:       node,
		Clock:       f.clk,
		Repo:        transactionrepo.Provide(),
		Currencies:  stubCurrencies{},
		Rates:       f.rates,
		Commissions: f.comms,
		Issuer:      f.issuer,
		Publisher:   f.publisher,
	})
	return f
}

func createTransaction(t *testing.T, f *fixture, amount string) *domain.CreateResult {
	t.Helper()

	res, err := f.svc.Create(context.Background(), domain.CreateRequest{
		SourceAmount:   decimal.RequireFromString(amount),
		SourceCurrency: "USD",
		DestCurrency:   "USDT",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int, args ...any) {
	t.Helper()

	var got int
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows, got %d (%s)", want, got, query)
	}
}

func TestCreateFreezesFinancialSnapshot(t *testing.T) {
	f := newFixture(t, 30)

	res := createTransaction(t, f, "100")
	txn := res.Transaction

	if txn.Status != domain.StatusAwaitingClaim {
		t.Fatalf("expected awaiting_claim, got %s", txn.Status)
	}
	if !txn.ConvertedAmount.Equal(decimal.RequireFromString("99.9")) {
		t.Fatalf("converted: expected 99.9, got %s", txn.ConvertedAmount)
	}
	if !txn.NetAmount.Equal(decimal.RequireFromString("94.905")) {
		t.Fatalf("net: expected 94.905, got %s", txn.NetAmount)
	}
	if !txn.CommissionAmount.Equal(txn.ConvertedAmount.Sub(txn.NetAmount)) {
		t.Fatalf("commission does not close the books: %s", txn.CommissionAmount)
	}
	if f.issuer.calls != 1 {
		t.Fatalf("expected exactly one issued code, got %d", f.issuer.calls)
	}
	wantEvents := []string{domain.EventPaymentCreated, domain.EventPaymentAwaitingClaim}
	if len(f.publisher.events) != len(wantEvents) {
		t.Fatalf("expected %v, got %v", wantEvents, f.publisher.events)
	}
	for i, e := range wantEvents {
		if f.publisher.events[i] != e {
			t.Fatalf("expected %v, got %v", wantEvents, f.publisher.events)
		}
	}
	assertCount(t, f.db, "SELECT COUNT(*) FROM transaction_logs WHERE transaction_id = ?", 2, txn.ID)

	// Later config changes must not touch the stored snapshot.
	f.comms.rate = decimal.RequireFromString("0.10")
	f.rates.rate = decimal.RequireFromString("2.0")

	stored, err := f.svc.Get(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.CommissionRate.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("snapshot rate changed: %s", stored.CommissionRate)
	}
	if !stored.ExchangeRate.Equal(decimal.RequireFromString("0.999")) {
		t.Fatalf("snapshot fx changed: %s", stored.ExchangeRate)
	}

	second := createTransaction(t, f, "100")
	if !second.Transaction.CommissionRate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("new transaction should use new rate, got %s", second.Transaction.CommissionRate)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t, 31)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateRequest{
		SourceAmount:   decimal.Zero,
		SourceCurrency: "USD",
		DestCurrency:   "USDT",
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = f.svc.Create(ctx, domain.CreateRequest{
		SourceAmount:   decimal.RequireFromString("-5"),
		SourceCurrency: "USD",
		DestCurrency:   "USDT",
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = f.svc.Create(ctx, domain.CreateRequest{
		SourceAmount:   decimal.RequireFromString("10"),
		SourceCurrency: "XYZ",
		DestCurrency:   "USDT",
	})
	if !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(*) FROM transactions", 0)
}

func TestCreateFailsWhenRateUnavailable(t *testing.T) {
	f := newFixture(t, 32)
	f.rates.err = exchangedomain.ErrRateUnavailable

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		SourceAmount:   decimal.RequireFromString("10"),
		SourceCurrency: "USD",
		DestCurrency:   "USDT",
	})
	if !errors.Is(err, exchangedomain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(*) FROM transactions", 0)
}

func TestClaimSettleLifecycle(t *testing.T) {
	f := newFixture(t, 33)
	ctx := context.Background()

	res := createTransaction(t, f, "50")
	id := res.Transaction.ID

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ClaimTx(ctx, tx, id)
		return err
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Second claim loses the CAS.
	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ClaimTx(ctx, tx, id)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := f.svc.MarkSettled(ctx, id, "cw_abc123"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	settled, err := f.svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settled.Status != domain.StatusSettled {
		t.Fatalf("expected settled, got %s", settled.Status)
	}
	if settled.PayoutReference == nil || *settled.PayoutReference != "cw_abc123" {
		t.Fatalf("payout reference not recorded: %v", settled.PayoutReference)
	}
	if settled.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	// Settled is terminal.
	if err := f.svc.MarkFailed(ctx, id, "too late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := f.svc.MarkSettled(ctx, id, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkFailedRecordsReason(t *testing.T) {
	f := newFixture(t, 34)
	ctx := context.Background()

	res := createTransaction(t, f, "25")
	id := res.Transaction.ID

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ClaimTx(ctx, tx, id)
		return err
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := f.svc.MarkFailed(ctx, id, "wallet rejected"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	failed, err := f.svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason == nil || *failed.FailureReason != "wallet rejected" {
		t.Fatalf("failure reason not recorded: %v", failed.FailureReason)
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	f := newFixture(t, 35)
	ctx := context.Background()

	res := createTransaction(t, f, "10")
	id := res.Transaction.ID

	// Not yet due.
	if err := f.svc.Expire(ctx, id); err != nil {
		t.Fatalf("expire before deadline: %v", err)
	}
	fresh, _ := f.svc.Get(ctx, id)
	if fresh.Status != domain.StatusAwaitingClaim {
		t.Fatalf("premature expiry: %s", fresh.Status)
	}

	f.clk.Advance(25 * time.Hour)

	if err := f.svc.Expire(ctx, id); err != nil {
		t.Fatalf("expire: %v", err)
	}
	expired, _ := f.svc.Get(ctx, id)
	if expired.Status != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", expired.Status)
	}

	// Second expiry is a no-op, not an error.
	if err := f.svc.Expire(ctx, id); err != nil {
		t.Fatalf("repeat expire: %v", err)
	}

	count, err := f.svc.SweepExpired(ctx, f.clk.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("sweep found already-expired rows: %d", count)
	}
}

func TestSweepExpiredBatches(t *testing.T) {
	f := newFixture(t, 36)
	ctx := context.Background()

	first := createTransaction(t, f, "10")
	second := createTransaction(t, f, "20")

	f.clk.Advance(25 * time.Hour)
	third := createTransaction(t, f, "30")

	count, err := f.svc.SweepExpired(ctx, f.clk.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 expired, got %d", count)
	}

	for _, id := range []snowflake.ID{first.Transaction.ID, second.Transaction.ID} {
		row, _ := f.svc.Get(ctx, id)
		if row.Status != domain.StatusExpired {
			t.Fatalf("expected expired, got %s", row.Status)
		}
	}
	live, _ := f.svc.Get(ctx, third.Transaction.ID)
	if live.Status != domain.StatusAwaitingClaim {
		t.Fatalf("live transaction swept: %s", live.Status)
	}
}
