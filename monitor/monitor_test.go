package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
)

// fakeClient is a scriptable chain adapter. It counts GetTransactions calls
// so tests can assert how many pollers are live.
type fakeClient struct {
	mu            sync.Mutex
	txs           []types.ObservedTransaction
	err           error
	calls         int
	confirmations int64
}

func (f *fakeClient) GetBalance(ctx context.Context, address string) (*types.Balance, error) {
	return &types.Balance{}, nil
}

func (f *fakeClient) GetTransactions(ctx context.Context, address string, limit int) ([]types.ObservedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.txs, nil
}

func (f *fakeClient) Confirmations() int64 {
	if f.confirmations > 0 {
		return f.confirmations
	}
	return 1
}

func (f *fakeClient) Family() types.ChainFamily { return types.ChainBitcoin }
func (f *fakeClient) Close()                    {}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) set(txs []types.ObservedTransaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs, f.err = txs, err
}

func newTestMonitor(t *testing.T, client *fakeClient) *Monitor {
	t.Helper()
	m := New(10*time.Millisecond, time.Hour, time.Second, logger.NoopLogger{}, metrics.NoopRecorder{})
	m.AddClient(types.ChainBitcoin, client)
	t.Cleanup(m.StopAll)
	return m
}

func TestStartIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(t, client)

	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))
	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))

	assert.True(t, m.IsWatching(types.CurrencyBTC, "addr-1"))
	assert.Len(t, m.Watched(), 1)

	// With a single poller at a 10ms cadence, 100ms of polling cannot
	// produce anywhere near the call volume of two pollers over the same
	// window. A second live ticker would roughly double the count.
	time.Sleep(100 * time.Millisecond)
	calls := client.callCount()
	assert.Greater(t, calls, 3)
	assert.Less(t, calls, 16)
}

func TestStartWithoutAdapter(t *testing.T) {
	m := New(10*time.Millisecond, time.Hour, time.Second, logger.NoopLogger{}, metrics.NoopRecorder{})
	t.Cleanup(m.StopAll)

	err := m.Start(types.CurrencyETH, "0xabc", "pay-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupportedCurrency, types.CodeOf(err))
	assert.False(t, m.IsWatching(types.CurrencyETH, "0xabc"))
}

func TestStopInactiveIsNoop(t *testing.T) {
	m := newTestMonitor(t, &fakeClient{})

	m.Stop(types.CurrencyBTC, "never-watched")
	assert.Empty(t, m.Watched())
}

func TestStopRemovesWatch(t *testing.T) {
	client := &fakeClient{}
	m := newTestMonitor(t, client)

	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))
	m.Stop(types.CurrencyBTC, "addr-1")

	assert.False(t, m.IsWatching(types.CurrencyBTC, "addr-1"))

	// The poller winds down; no further polls after it exits.
	time.Sleep(50 * time.Millisecond)
	settled := client.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, client.callCount())
}

func TestFailedTickKeepsWatch(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	m := newTestMonitor(t, client)

	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))

	require.Eventually(t, func() bool { return client.callCount() >= 3 },
		time.Second, 5*time.Millisecond)
	assert.True(t, m.IsWatching(types.CurrencyBTC, "addr-1"))

	// Once the provider recovers the same watch starts emitting.
	client.set([]types.ObservedTransaction{
		{TxHash: "tx-1", Amount: decimal.RequireFromString("0.5"), Confirmations: 2},
	}, nil)

	select {
	case evt := <-m.Events():
		assert.Equal(t, "pay-1", evt.PaymentID)
		assert.Equal(t, "tx-1", evt.Tx.TxHash)
	case <-time.After(time.Second):
		t.Fatal("no event after provider recovered")
	}
}

func TestEmitsOnlyConfirmedPositiveTransfers(t *testing.T) {
	client := &fakeClient{confirmations: 3}
	client.set([]types.ObservedTransaction{
		{TxHash: "unconfirmed", Amount: decimal.NewFromInt(1), Confirmations: 2},
		{TxHash: "zero-value", Amount: decimal.Zero, Confirmations: 5},
		{TxHash: "good", Amount: decimal.NewFromInt(1), Confirmations: 3},
	}, nil)
	m := newTestMonitor(t, client)

	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))

	select {
	case evt := <-m.Events():
		assert.Equal(t, "good", evt.Tx.TxHash)
		assert.Equal(t, types.CurrencyBTC, evt.Currency)
		assert.Equal(t, "addr-1", evt.Address)
	case <-time.After(time.Second):
		t.Fatal("expected an event for the confirmed transfer")
	}
}

func TestCeilingExpiresWatch(t *testing.T) {
	client := &fakeClient{}
	m := New(5*time.Millisecond, 40*time.Millisecond, time.Second, logger.NoopLogger{}, metrics.NoopRecorder{})
	m.AddClient(types.ChainBitcoin, client)
	t.Cleanup(m.StopAll)

	require.NoError(t, m.Start(types.CurrencyBTC, "addr-1", "pay-1"))
	require.True(t, m.IsWatching(types.CurrencyBTC, "addr-1"))

	require.Eventually(t, func() bool { return !m.IsWatching(types.CurrencyBTC, "addr-1") },
		time.Second, 5*time.Millisecond)
}

func TestInjectReachesEventStream(t *testing.T) {
	m := newTestMonitor(t, &fakeClient{})

	m.Inject(types.DetectedTransaction{
		Currency: types.CurrencyBTC,
		Address:  "addr-ext",
		Tx:       types.ObservedTransaction{TxHash: "pushed", Amount: decimal.NewFromInt(1), Confirmations: 1},
	})

	evt := <-m.Events()
	assert.Equal(t, "pushed", evt.Tx.TxHash)
	assert.Empty(t, evt.PaymentID)
}
