// Package monitor owns the set of (currency, address) pairs being watched and
// polls each one for incoming transfers via its chain adapter. Detected
// transfers are emitted on an events channel; the monitor never decides
// whether a payment is confirmed.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
)

const defaultTxFetchLimit = 5

type watchKey struct {
	currency types.Currency
	address  string
}

type watch struct {
	paymentID string
	startedAt time.Time
	expiresAt time.Time
	cancel    context.CancelFunc
}

// Monitor polls every registered address on a fixed cadence. Each watch runs
// its own ticker goroutine; ticks for the same pair are serialized by that
// goroutine, and ticks for different pairs never block each other.
type Monitor struct {
	mu      sync.RWMutex
	watches map[watchKey]*watch
	clients map[types.ChainFamily]clients.Client

	events chan types.DetectedTransaction

	interval time.Duration
	ceiling  time.Duration
	timeout  time.Duration

	log logger.Logger
	rec metrics.Recorder
	wg  sync.WaitGroup
}

// New creates a Monitor. interval is the poll cadence, ceiling the hard watch
// expiry, timeout the per-adapter-call deadline.
func New(interval, ceiling, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *Monitor {
	return &Monitor{
		watches:  make(map[watchKey]*watch),
		clients:  make(map[types.ChainFamily]clients.Client),
		events:   make(chan types.DetectedTransaction, 64),
		interval: interval,
		ceiling:  ceiling,
		timeout:  timeout,
		log:      log,
		rec:      rec,
	}
}

// AddClient registers the chain adapter for a family. Watches for currencies
// of that family poll through it.
func (m *Monitor) AddClient(family types.ChainFamily, client clients.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[family] = client
}

// Events is the stream of detected transactions, consumed by the
// confirmation matcher.
func (m *Monitor) Events() <-chan types.DetectedTransaction {
	return m.events
}

// Start registers a watch for the pair. If a watch for the same
// (currency, address) is already active the call is a silent no-op; at most
// one live poller exists per pair.
func (m *Monitor) Start(currency types.Currency, address, paymentID string) error {
	key := watchKey{currency: currency, address: address}

	m.mu.Lock()
	if _, active := m.watches[key]; active {
		m.mu.Unlock()
		return nil
	}

	client, ok := m.clients[currency.Family()]
	if !ok {
		m.mu.Unlock()
		return &types.GatewayError{
			Code:    types.ErrUnsupportedCurrency,
			Message: "no chain adapter registered for " + string(currency),
		}
	}

	// The ceiling bounds resource usage even when a lifecycle bug
	// elsewhere never stops the watch.
	ctx, cancel := context.WithTimeout(context.Background(), m.ceiling)
	now := time.Now().UTC()
	w := &watch{
		paymentID: paymentID,
		startedAt: now,
		expiresAt: now.Add(m.ceiling),
		cancel:    cancel,
	}
	m.watches[key] = w
	m.mu.Unlock()

	m.log.Info("watch started", map[string]any{
		"currency":  currency,
		"address":   address,
		"paymentId": paymentID,
	})
	m.rec.IncCounter("watches_started", map[string]string{"currency": string(currency)})

	m.wg.Add(1)
	go m.run(ctx, key, w, client)
	return nil
}

// Stop cancels the watch for the pair and removes its registration. Stopping
// an inactive pair is a no-op. A tick already in flight is not interrupted;
// its event, if any, is discarded downstream once the payment is terminal.
func (m *Monitor) Stop(currency types.Currency, address string) {
	key := watchKey{currency: currency, address: address}

	m.mu.Lock()
	w, ok := m.watches[key]
	if ok {
		delete(m.watches, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	w.cancel()
	m.log.Info("watch stopped", map[string]any{
		"currency": currency,
		"address":  address,
	})
	m.rec.IncCounter("watches_stopped", map[string]string{"currency": string(currency)})
}

// StopAll cancels every active watch and waits for their pollers to exit.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	for key, w := range m.watches {
		w.cancel()
		delete(m.watches, key)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Inject feeds an externally-detected transaction (e.g. a provider push
// notification) into the same event stream the pollers use.
func (m *Monitor) Inject(evt types.DetectedTransaction) {
	m.events <- evt
}

// IsWatching reports whether a watch for the pair is active.
func (m *Monitor) IsWatching(currency types.Currency, address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.watches[watchKey{currency: currency, address: address}]
	return ok
}

// Watched returns a snapshot of the active registrations.
func (m *Monitor) Watched() []types.WatchedAddress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.WatchedAddress, 0, len(m.watches))
	for key, w := range m.watches {
		out = append(out, types.WatchedAddress{
			Currency:  key.currency,
			Address:   key.address,
			PaymentID: w.paymentID,
			StartedAt: w.startedAt,
			ExpiresAt: w.expiresAt,
		})
	}
	return out
}

func (m *Monitor) run(ctx context.Context, key watchKey, w *watch, client clients.Client) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Ceiling elapsed or Stop was called. Drop the
			// registration if it is still ours.
			m.mu.Lock()
			if cur, ok := m.watches[key]; ok && cur == w {
				delete(m.watches, key)
			}
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.tick(ctx, key, w, client)
		}
	}
}

// tick performs one poll. A failed fetch is logged and skipped; it never
// deregisters the watch or touches the payment.
func (m *Monitor) tick(ctx context.Context, key watchKey, w *watch, client clients.Client) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	start := time.Now()
	txs, err := client.GetTransactions(callCtx, key.address, defaultTxFetchLimit)
	m.rec.ObserveLatency("poll", time.Since(start), map[string]string{"currency": string(key.currency)})
	cancel()

	if err != nil {
		m.log.Warn("poll tick failed", map[string]any{
			"currency": key.currency,
			"address":  key.address,
			"error":    err.Error(),
		})
		m.rec.IncCounter("poll_failures", map[string]string{"currency": string(key.currency)})
		return
	}

	threshold := client.Confirmations()
	for _, tx := range txs {
		if tx.Confirmations < threshold || !tx.Amount.IsPositive() {
			continue
		}

		evt := types.DetectedTransaction{
			PaymentID: w.paymentID,
			Currency:  key.currency,
			Address:   key.address,
			Tx:        tx,
		}

		select {
		case m.events <- evt:
			m.rec.IncCounter("transactions_detected", map[string]string{"currency": string(key.currency)})
		case <-ctx.Done():
			return
		}
	}
}
