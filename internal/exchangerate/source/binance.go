package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"github.com/smallbiznis/payway/internal/exchangerate/domain"
)

// Binance resolves spot prices from the Binance ticker endpoint.
type Binance struct {
	baseURL string
	client  *http.Client
}

func NewBinance(baseURL string) *Binance {
	return &Binance{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) FetchRate(ctx context.Context, from, to currencydomain.Currency) (decimal.Decimal, error) {
	// Binance only quotes trading pairs; at least one side must be crypto.
	if !from.IsCrypto && !to.IsCrypto {
		return decimal.Zero, fmt.Errorf("pair %s/%s not quoted", from.Code, to.Code)
	}

	price, err := b.tickerPrice(ctx, from.Code+to.Code)
	if err == nil {
		return price, nil
	}

	// Fall back to the inverse pair.
	inverse, invErr := b.tickerPrice(ctx, to.Code+from.Code)
	if invErr != nil {
		return decimal.Zero, err
	}
	if inverse.IsZero() {
		return decimal.Zero, fmt.Errorf("zero price for %s%s", to.Code, from.Code)
	}
	return decimal.NewFromInt(1).DivRound(inverse, 16), nil
}

func (b *Binance) tickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/ticker/price?symbol=%s", b.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("binance status %d for %s", resp.StatusCode, symbol)
	}

	var payload struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(payload.Price)
}

var _ domain.Source = (*Binance)(nil)
