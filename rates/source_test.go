package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/paygate/types"
)

func TestCoinGeckoFetchRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "stacks", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stacks":{"usd":1.85}}`))
	}))
	defer srv.Close()

	source := NewCoinGeckoSource(srv.URL, time.Second)
	rate, err := source.FetchRate(context.Background(), types.CurrencySTX)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.85")))
}

func TestCoinGeckoSBTCTracksBitcoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"bitcoin":{"usd":50000}}`))
	}))
	defer srv.Close()

	source := NewCoinGeckoSource(srv.URL, time.Second)
	rate, err := source.FetchRate(context.Background(), types.CurrencySBTC)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(50000)))
}

func TestCoinGeckoUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	source := NewCoinGeckoSource(srv.URL, time.Second)
	_, err := source.FetchRate(context.Background(), types.CurrencyBTC)
	require.Error(t, err)
}

func TestCoinGeckoMissingQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	source := NewCoinGeckoSource(srv.URL, time.Second)
	_, err := source.FetchRate(context.Background(), types.CurrencyETH)
	require.Error(t, err)
}

func TestCoinGeckoUnmappedCurrency(t *testing.T) {
	source := NewCoinGeckoSource("http://unused.invalid", time.Second)
	_, err := source.FetchRate(context.Background(), types.Currency("DOGE"))
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedCurrency, types.CodeOf(err))
}
