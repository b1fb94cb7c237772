package paygate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/rates"
	"github.com/vitwit/paygate/types"
)

// stubRateSource avoids the live CoinGecko dependency in facade tests.
type stubRateSource struct {
	rate decimal.Decimal
}

func (s stubRateSource) FetchRate(ctx context.Context, currency types.Currency) (decimal.Decimal, error) {
	return s.rate, nil
}

var _ rates.Source = stubRateSource{}

// blockcypherStub serves empty poll responses so the monitor's pollers have a
// live endpoint to talk to.
func blockcypherStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"txs": []}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(t *testing.T, config *types.GatewayConfig) *Gateway {
	t.Helper()
	g := New(config,
		WithLogger(logger.NoopLogger{}),
		WithRateSource(stubRateSource{rate: decimal.NewFromInt(50000)}),
	)
	t.Cleanup(g.Close)
	return g
}

func TestDefaultsApplied(t *testing.T) {
	config := &types.GatewayConfig{WebhookSecret: "s"}
	g := newTestGateway(t, config)
	_ = g

	assert.Equal(t, 30*time.Second, config.PollInterval)
	assert.Equal(t, 24*time.Hour, config.WatchCeiling)
	assert.Equal(t, time.Hour, config.PaymentTTL)
	assert.Equal(t, 5*time.Minute, config.RateTTL)
	assert.True(t, config.MatchTolerance.Equal(decimal.New(1, -8)))
	assert.Equal(t, 3, config.WebhookMaxRetries)
	assert.Equal(t, time.Second, config.WebhookBackoff)
}

func TestSupportedCurrenciesFollowAdapters(t *testing.T) {
	srv := blockcypherStub(t)
	g := newTestGateway(t, nil)

	assert.Empty(t, g.SupportedCurrencies(), "no adapters yet")

	require.NoError(t, g.AddChain(types.ChainBitcoin, types.ClientConfig{APIUrl: srv.URL}))
	assert.ElementsMatch(t, []types.Currency{types.CurrencyBTC}, g.SupportedCurrencies())

	require.NoError(t, g.AddChain(types.ChainStacks, types.ClientConfig{APIUrl: srv.URL}))
	assert.ElementsMatch(t,
		[]types.Currency{types.CurrencyBTC, types.CurrencySTX, types.CurrencySBTC},
		g.SupportedCurrencies())
}

func TestAddChainRejectsUnknownFamily(t *testing.T) {
	g := newTestGateway(t, nil)

	err := g.AddChain(types.ChainFamily("solana"), types.ClientConfig{APIUrl: "http://x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedCurrency, types.CodeOf(err))
}

func TestCreatePaymentStartsWatch(t *testing.T) {
	srv := blockcypherStub(t)
	g := newTestGateway(t, &types.GatewayConfig{WebhookSecret: "s"})
	require.NoError(t, g.AddChain(types.ChainBitcoin, types.ClientConfig{APIUrl: srv.URL}))

	p, err := g.CreatePayment(context.Background(), "merchant-1", &types.PaymentRequest{
		Amount:   "0.001",
		Currency: types.CurrencyBTC,
		Memo:     "order-42",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.NotEmpty(t, p.Address)
	assert.True(t, p.USDAmount.Equal(decimal.NewFromInt(50)), "0.001 BTC at 50000")

	watched := g.WatchedAddresses()
	require.Len(t, watched, 1)
	assert.Equal(t, p.ID, watched[0].PaymentID)
	assert.Equal(t, p.Address, watched[0].Address)

	got, err := g.GetPayment(p.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list := g.ListPayments("merchant-1", types.PaymentFilter{})
	require.Len(t, list, 1)

	stats := g.PaymentStats("merchant-1")
	assert.Equal(t, 1, stats.Pending)
}

func TestIngestBlockCypherConfirmsPayment(t *testing.T) {
	srv := blockcypherStub(t)
	g := newTestGateway(t, &types.GatewayConfig{
		WebhookSecret: "s",
		PollInterval:  time.Hour, // push-driven in this test
	})
	require.NoError(t, g.AddChain(types.ChainBitcoin, types.ClientConfig{APIUrl: srv.URL}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	p, err := g.CreatePayment(ctx, "merchant-1", &types.PaymentRequest{
		Amount:   "0.0015",
		Currency: types.CurrencyBTC,
	})
	require.NoError(t, err)

	body := []byte(`{
		"hash": "f854aeba",
		"addresses": ["` + p.Address + `"],
		"total": 150000,
		"confirmations": 2
	}`)
	require.NoError(t, g.IngestBlockCypher(body))

	require.Eventually(t, func() bool {
		got, err := g.GetPayment(p.ID, "merchant-1")
		return err == nil && got.Status == types.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := g.GetPayment(p.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, "f854aeba", got.ConfirmedTx.TxHash)
	assert.False(t, g.mon.IsWatching(p.Currency, p.Address))
}

func TestIngestBlockCypherRejectsMalformed(t *testing.T) {
	g := newTestGateway(t, nil)
	require.Error(t, g.IngestBlockCypher([]byte("not json")))
}

func TestGetVersion(t *testing.T) {
	info := GetVersion()
	assert.Equal(t, Version, info["library_version"])
	assert.Contains(t, info["supported_currencies"], "sBTC")
}
