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
	"github.com/smallbiznis/payway/internal/config"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"github.com/smallbiznis/payway/internal/exchangerate/domain"
	exchangerepo "github.com/smallbiznis/payway/internal/exchangerate/repository"
	exchangeservice "github.com/smallbiznis/payway/internal/exchangerate/service"
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

	if err := db.Exec(`CREATE TABLE exchange_rates (
		id BIGINT PRIMARY KEY,
		from_currency TEXT NOT NULL,
		to_currency TEXT NOT NULL,
		rate NUMERIC(20,8) NOT NULL,
		source TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

type stubCurrencies struct{}

func (stubCurrencies) List(context.Context) ([]currencydomain.Currency, error) {
	return []currencydomain.Currency{
		{Code: "USD", DecimalPlaces: 2, IsActive: true},
		{Code: "USDT", DecimalPlaces: 6, IsCrypto: true, IsActive: true},
	}, nil
}

func (stubCurrencies) Find(_ context.Context, code string) (*currencydomain.Currency, error) {
	switch code {
	case "USD":
		return &currencydomain.Currency{Code: "USD", DecimalPlaces: 2, IsActive: true}, nil
	case "USDT":
		return &currencydomain.Currency{Code: "USDT", DecimalPlaces: 6, IsCrypto: true, IsActive: true}, nil
	}
	return nil, currencydomain.ErrCurrencyNotFound
}

type stubSource struct {
	name    string
	rate    decimal.Decimal
	err     error
	fetches int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchRate(_ context.Context, _, _ currencydomain.Currency) (decimal.Decimal, error) {
	s.fetches++
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.rate, nil
}

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	clk    *clock.FakeClock
	source *stubSource
	backup *stubSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	f := &fixture{
		db:     setupTestDB(t),
		clk:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		source: &stubSource{name: "binance", rate: decimal.RequireFromString("0.999")},
		backup: &stubSource{name: "coingecko", rate: decimal.RequireFromString("0.998")},
	}

	cfg := config.Config{}
	cfg.Rates.MaxAge = 10 * time.Minute
	cfg.Rates.CacheTTL = 5 * time.Minute
	cfg.Rates.FetchTimeout = time.Second
	cfg.Rates.RetentionDays = 30

	f.svc = exchangeservice.New(exchangeservice.Params{
		DB:          f.db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       f.clk,
		Repo:        exchangerepo.Provide(),
		CurrencySvc: stubCurrencies{},
		Sources:     []domain.Source{f.source, f.backup},
		Cfg:         cfg,
	})
	return f
}

func countRates(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Table("exchange_rates").Count(&n).Error; err != nil {
		t.Fatalf("count rates: %v", err)
	}
	return n
}

func TestGetRateIdentityPair(t *testing.T) {
	f := newFixture(t)

	quote, err := f.svc.GetRate(context.Background(), "usd", "USD")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !quote.Rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("identity rate = %s", quote.Rate)
	}
	if f.source.fetches != 0 {
		t.Fatal("identity pair hit a source")
	}
}

func TestGetRateFetchesAndStores(t *testing.T) {
	f := newFixture(t)

	quote, err := f.svc.GetRate(context.Background(), "USD", "USDT")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if !quote.Rate.Equal(decimal.RequireFromString("0.999")) {
		t.Fatalf("rate = %s", quote.Rate)
	}
	if quote.Source != "binance" {
		t.Fatalf("source = %s", quote.Source)
	}
	if got := countRates(t, f.db); got != 1 {
		t.Fatalf("stored %d rates", got)
	}

	// A second lookup inside the max age is served from storage.
	if _, err := f.svc.GetRate(context.Background(), "USD", "USDT"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if f.source.fetches != 1 {
		t.Fatalf("source fetched %d times", f.source.fetches)
	}
}

func TestGetRateRefetchesStaleRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.GetRate(ctx, "USD", "USDT"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	f.clk.Advance(11 * time.Minute)
	f.source.rate = decimal.RequireFromString("1.001")

	quote, err := f.svc.GetRate(ctx, "USD", "USDT")
	if err != nil {
		t.Fatalf("stale lookup: %v", err)
	}
	if !quote.Rate.Equal(decimal.RequireFromString("1.001")) {
		t.Fatalf("rate = %s, expected refetched value", quote.Rate)
	}
	if got := countRates(t, f.db); got != 2 {
		t.Fatalf("stored %d rates", got)
	}
}

func TestGetRateFallsBackToSecondSource(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("binance down")

	quote, err := f.svc.GetRate(context.Background(), "USD", "USDT")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if quote.Source != "coingecko" {
		t.Fatalf("source = %s", quote.Source)
	}
	if !quote.Rate.Equal(decimal.RequireFromString("0.998")) {
		t.Fatalf("rate = %s", quote.Rate)
	}
}

func TestGetRateRejectsNonPositiveRate(t *testing.T) {
	f := newFixture(t)
	f.source.rate = decimal.Zero
	f.backup.err = errors.New("coingecko down")

	_, err := f.svc.GetRate(context.Background(), "USD", "USDT")
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
	if got := countRates(t, f.db); got != 0 {
		t.Fatalf("stored %d rates from failed fetch", got)
	}
}

func TestGetRateUnknownCurrency(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRate(context.Background(), "USD", "XYZ")
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestRefreshAllCoversEveryPair(t *testing.T) {
	f := newFixture(t)

	updated, err := f.svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// Two active currencies make two directed pairs.
	if updated != 2 {
		t.Fatalf("updated %d pairs", updated)
	}
	if got := countRates(t, f.db); got != 2 {
		t.Fatalf("stored %d rates", got)
	}
}

func TestRefreshAllReportsPerPairErrors(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("binance down")
	f.backup.err = errors.New("coingecko down")

	updated, err := f.svc.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if updated != 0 {
		t.Fatalf("updated %d pairs with every source down", updated)
	}
}

func TestCleanupOldKeepsRecentRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.GetRate(ctx, "USD", "USDT"); err != nil {
		t.Fatalf("seed rate: %v", err)
	}

	f.clk.Advance(40 * 24 * time.Hour)
	f.source.rate = decimal.RequireFromString("1.002")
	if _, err := f.svc.GetRate(ctx, "USD", "USDT"); err != nil {
		t.Fatalf("fresh rate: %v", err)
	}

	removed, err := f.svc.CleanupOld(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows", removed)
	}
	if got := countRates(t, f.db); got != 1 {
		t.Fatalf("%d rates remain", got)
	}
}
