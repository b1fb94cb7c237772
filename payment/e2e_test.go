package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/webhook"
)

// merchantEndpoint records webhook deliveries and verifies their signatures.
type merchantEndpoint struct {
	mu       sync.Mutex
	bodies   [][]byte
	sigs     []string
	received chan struct{}
}

func newMerchantEndpoint() *merchantEndpoint {
	return &merchantEndpoint{received: make(chan struct{}, 8)}
}

func (m *merchantEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.bodies = append(m.bodies, body)
	m.sigs = append(m.sigs, r.Header.Get("X-Webhook-Signature"))
	m.mu.Unlock()

	m.received <- struct{}{}
	w.WriteHeader(http.StatusOK)
}

func (m *merchantEndpoint) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

// Detection to confirmation: a 0.001 BTC payment is created, the watched
// address reports a matching one-confirmation transfer, and the merchant
// receives exactly one signed webhook.
func TestDetectionToConfirmation(t *testing.T) {
	endpoint := newMerchantEndpoint()
	receiver := httptest.NewServer(endpoint)
	defer receiver.Close()

	h := newHarness(t, &fixedSource{rate: decimal.NewFromInt(50000)})

	matcher := NewMatcher(h.svc, h.mon.Events(), decimal.New(1, -8), logger.NoopLogger{}, metrics.NoopRecorder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go matcher.Run(ctx)

	p, err := h.svc.Create(ctx, "merchant-1", &types.PaymentRequest{
		Amount:     "0.001",
		Currency:   types.CurrencyBTC,
		Memo:       "order-42",
		WebhookURL: receiver.URL,
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, p.Status)

	// The next poll tick reports the matching transfer.
	h.mon.Inject(types.DetectedTransaction{
		PaymentID: p.ID,
		Currency:  p.Currency,
		Address:   p.Address,
		Tx:        types.ObservedTransaction{TxHash: "deadbeef", Amount: decimal.RequireFromString("0.001"), Confirmations: 1},
	})

	select {
	case <-endpoint.received:
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook delivered")
	}

	got, err := h.svc.Get(p.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, "deadbeef", got.ConfirmedTx.TxHash)

	h.svc.Close()
	require.Equal(t, 1, endpoint.count())

	body := endpoint.bodies[0]
	assert.Equal(t, webhook.Signature(body, "test-secret"), endpoint.sigs[0], "HMAC signature must verify")

	var payload webhook.Payload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, types.EventPaymentConfirmed, payload.Event)
	assert.Equal(t, p.ID, payload.Payment.ID)
	require.NotNil(t, payload.Transaction)
	assert.Equal(t, "deadbeef", payload.Transaction.TxHash)
	assert.Equal(t, int64(1), payload.Transaction.Confirmations)
}

// Expiry without detection: a payment with a 300 second TTL sees no transfer,
// the sweep expires it after 301 seconds, the watch is removed, and no
// webhook is ever sent.
func TestExpiryWithoutDetection(t *testing.T) {
	endpoint := newMerchantEndpoint()
	receiver := httptest.NewServer(endpoint)
	defer receiver.Close()

	h := newHarness(t, &fixedSource{rate: decimal.NewFromInt(50000)})
	sweep := NewSweep(h.svc, time.Minute, logger.NoopLogger{})

	p, err := h.svc.Create(context.Background(), "merchant-1", &types.PaymentRequest{
		Amount:     "0.001",
		Currency:   types.CurrencyBTC,
		ExpiresIn:  300,
		WebhookURL: receiver.URL,
	})
	require.NoError(t, err)
	require.True(t, h.mon.IsWatching(p.Currency, p.Address))

	*h.now = h.now.Add(301 * time.Second)
	sweep.Tick()

	got, err := h.svc.Get(p.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusExpired, got.Status)
	assert.False(t, h.mon.IsWatching(p.Currency, p.Address))

	h.svc.Close()
	assert.Equal(t, 0, endpoint.count(), "expiry must not notify the merchant")
}
