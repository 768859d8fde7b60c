package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	currencydomain "github.com/smallbiznis/payway/internal/currency/domain"
	"github.com/smallbiznis/payway/internal/exchangerate/domain"
)

// coinIDs maps ticker codes to CoinGecko coin identifiers.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"USDC": "usd-coin",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"LTC":  "litecoin",
	"TRX":  "tron",
}

// CoinGecko resolves crypto/fiat prices from the simple price endpoint.
type CoinGecko struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCoinGecko(baseURL, apiKey string) *CoinGecko {
	return &CoinGecko{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) FetchRate(ctx context.Context, from, to currencydomain.Currency) (decimal.Decimal, error) {
	switch {
	case from.IsCrypto && !to.IsCrypto:
		return c.simplePrice(ctx, from.Code, to.Code)
	case !from.IsCrypto && to.IsCrypto:
		price, err := c.simplePrice(ctx, to.Code, from.Code)
		if err != nil {
			return decimal.Zero, err
		}
		if price.IsZero() {
			return decimal.Zero, fmt.Errorf("zero price for %s", to.Code)
		}
		return decimal.NewFromInt(1).DivRound(price, 16), nil
	case from.IsCrypto && to.IsCrypto:
		// Cross rate via USD.
		fromUSD, err := c.simplePrice(ctx, from.Code, "USD")
		if err != nil {
			return decimal.Zero, err
		}
		toUSD, err := c.simplePrice(ctx, to.Code, "USD")
		if err != nil {
			return decimal.Zero, err
		}
		if toUSD.IsZero() {
			return decimal.Zero, fmt.Errorf("zero price for %s", to.Code)
		}
		return fromUSD.DivRound(toUSD, 16), nil
	default:
		return decimal.Zero, fmt.Errorf("pair %s/%s not quoted", from.Code, to.Code)
	}
}

func (c *CoinGecko) simplePrice(ctx context.Context, coinCode, vsCode string) (decimal.Decimal, error) {
	coinID, ok := coinIDs[strings.ToUpper(coinCode)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown coin %s", coinCode)
	}
	vs := strings.ToLower(vsCode)

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(coinID), url.QueryEscape(vs))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko status %d for %s", resp.StatusCode, coinID)
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	price, ok := payload[coinID][vs]
	if !ok {
		return decimal.Zero, fmt.Errorf("no %s price for %s", vs, coinID)
	}
	return decimal.NewFromString(price.String())
}

var _ domain.Source = (*CoinGecko)(nil)
