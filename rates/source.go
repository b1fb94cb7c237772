package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/types"
)

// Source fetches a live currency-to-USD rate from an external price feed.
type Source interface {
	FetchRate(ctx context.Context, currency types.Currency) (decimal.Decimal, error)
}

// coinIDs maps supported currencies onto CoinGecko coin ids. sBTC tracks the
// Bitcoin price.
var coinIDs = map[types.Currency]string{
	types.CurrencyBTC:  "bitcoin",
	types.CurrencyETH:  "ethereum",
	types.CurrencyUSDT: "tether",
	types.CurrencySTX:  "stacks",
	types.CurrencySBTC: "bitcoin",
}

// CoinGeckoSource fetches USD rates from a CoinGecko-compatible API.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates a price source. baseURL defaults to the public
// CoinGecko v3 API when empty.
func NewCoinGeckoSource(baseURL string, timeout time.Duration) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &CoinGeckoSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchRate implements Source.
func (s *CoinGeckoSource) FetchRate(ctx context.Context, currency types.Currency) (decimal.Decimal, error) {
	coinID, ok := coinIDs[currency]
	if !ok {
		return decimal.Zero, &types.GatewayError{
			Code:    types.ErrUnsupportedCurrency,
			Message: fmt.Sprintf("no price feed mapping for %s", currency),
		}
	}

	params := url.Values{
		"ids":           {coinID},
		"vs_currencies": {"usd"},
	}
	endpoint := fmt.Sprintf("%s/simple/price?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("price fetch failed: status %d", resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("price fetch failed: %w", err)
	}

	usd, ok := body[coinID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price fetch failed: no usd quote for %s", coinID)
	}

	rate, err := decimal.NewFromString(usd.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("price fetch failed: %w", err)
	}

	return rate, nil
}
