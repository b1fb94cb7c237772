// Package paygate implements the payment monitoring and confirmation core of
// a multi-chain payment gateway: it binds merchant payment requests to
// receiving addresses, watches the Bitcoin, Ethereum, and Stacks families for
// matching transfers, and notifies merchants once a transfer reaches the
// chain's confirmation threshold.
package paygate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/clients"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/monitor"
	"github.com/vitwit/paygate/payment"
	"github.com/vitwit/paygate/rates"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/wallet"
	"github.com/vitwit/paygate/webhook"
)

// Gateway is the main entry point wiring the monitor, matcher, dispatcher,
// rate cache, and lifecycle service together.
type Gateway struct {
	config *types.GatewayConfig

	store      payment.Store
	rateStore  rates.RateStore
	rateSource rates.Source
	wallets    wallet.Provider

	rateCache  *rates.Cache
	mon        *monitor.Monitor
	dispatcher *webhook.Dispatcher
	payments   *payment.Service
	matcher    *payment.Matcher
	sweep      *payment.Sweep

	chainClients map[types.ChainFamily]clients.Client

	log    logger.Logger
	rec    metrics.Recorder
	cancel context.CancelFunc
}

// New creates a Gateway with the given configuration. Zero-valued config
// fields fall back to the documented defaults.
func New(config *types.GatewayConfig, opts ...Option) *Gateway {
	if config == nil {
		config = &types.GatewayConfig{}
	}
	applyDefaults(config)

	g := &Gateway{
		config:       config,
		chainClients: make(map[types.ChainFamily]clients.Client),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.log == nil {
		g.log = logger.NewZapLogger(config.LogLevel)
	}
	if g.rec == nil {
		if config.EnableMetrics {
			g.rec = metrics.NewPrometheusRecorder()
		} else {
			g.rec = metrics.NoopRecorder{}
		}
	}
	if g.store == nil {
		g.store = payment.NewMemoryStore()
	}
	if g.rateStore == nil {
		g.rateStore = rates.NewMemoryRateStore()
	}
	if g.rateSource == nil {
		g.rateSource = rates.NewCoinGeckoSource("", 0)
	}
	if g.wallets == nil {
		g.wallets = wallet.NewKeyProvider(false)
	}

	g.rateCache = rates.NewCache(g.rateStore, g.rateSource, config.RateTTL, g.log, g.rec)
	g.mon = monitor.New(config.PollInterval, config.WatchCeiling, config.DefaultTimeout, g.log, g.rec)
	g.dispatcher = webhook.NewDispatcher(
		config.WebhookSecret,
		config.WebhookMaxRetries,
		config.WebhookBackoff,
		config.WebhookTimeout,
		g.log,
		g.rec,
	)
	g.payments = payment.NewService(g.store, g.wallets, g.rateCache, g.mon, g.dispatcher, config.PaymentTTL, g.log, g.rec)
	g.matcher = payment.NewMatcher(g.payments, g.mon.Events(), config.MatchTolerance, g.log, g.rec)
	g.sweep = payment.NewSweep(g.payments, config.SweepInterval, g.log)

	return g
}

// NewWithDefaults creates a Gateway with the default configuration.
func NewWithDefaults(opts ...Option) *Gateway {
	return New(&types.GatewayConfig{}, opts...)
}

func applyDefaults(config *types.GatewayConfig) {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.WatchCeiling <= 0 {
		config.WatchCeiling = 24 * time.Hour
	}
	if config.PaymentTTL <= 0 {
		config.PaymentTTL = time.Hour
	}
	if config.RateTTL <= 0 {
		config.RateTTL = 5 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.MatchTolerance.IsZero() {
		config.MatchTolerance = decimal.New(1, -8)
	}
	if config.WebhookMaxRetries <= 0 {
		config.WebhookMaxRetries = 3
	}
	if config.WebhookBackoff <= 0 {
		config.WebhookBackoff = time.Second
	}
	if config.WebhookTimeout <= 0 {
		config.WebhookTimeout = 10 * time.Second
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// AddChain creates and registers the chain adapter for a family. Currencies
// of that family become watchable once their family has an adapter.
func (g *Gateway) AddChain(family types.ChainFamily, cfg types.ClientConfig) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = g.config.DefaultTimeout
	}

	var (
		client clients.Client
		err    error
	)
	switch family {
	case types.ChainBitcoin:
		client, err = clients.NewBitcoinClient(cfg)
	case types.ChainEthereum:
		client, err = clients.NewEthereumClient(cfg)
	case types.ChainStacks:
		client, err = clients.NewStacksClient(cfg)
	default:
		return &types.GatewayError{
			Code:    types.ErrUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported chain family: %s", family),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", family, err)
	}

	g.chainClients[family] = client
	g.mon.AddClient(family, client)
	return nil
}

// Start launches the confirmation matcher, the expiry sweep, and the rate
// refresher. It returns immediately; Close stops everything.
func (g *Gateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)

	go g.matcher.Run(ctx)
	go g.sweep.Run(ctx)
	go g.rateCache.Run(ctx)

	g.log.Info("payment core started", map[string]any{
		"pollInterval": g.config.PollInterval.String(),
		"paymentTtl":   g.config.PaymentTTL.String(),
	})
}

// CreatePayment creates a PENDING payment for the user and starts watching
// its receiving address.
func (g *Gateway) CreatePayment(ctx context.Context, userID string, req *types.PaymentRequest) (*types.Payment, error) {
	return g.payments.Create(ctx, userID, req)
}

// GetPayment returns one of the user's payments.
func (g *Gateway) GetPayment(paymentID, userID string) (*types.Payment, error) {
	return g.payments.Get(paymentID, userID)
}

// ListPayments returns the user's payments, newest first.
func (g *Gateway) ListPayments(userID string, filter types.PaymentFilter) []*types.Payment {
	return g.payments.List(userID, filter)
}

// PaymentStats aggregates the user's payments by status.
func (g *Gateway) PaymentStats(userID string) *types.PaymentStats {
	return g.payments.Stats(userID)
}

// WatchedAddresses returns a snapshot of the active watch registrations.
func (g *Gateway) WatchedAddresses() []types.WatchedAddress {
	return g.mon.Watched()
}

// IngestBlockCypher accepts a BlockCypher push-notification body and routes
// the transfers it describes through the same matching pipeline as polled
// detections.
func (g *Gateway) IngestBlockCypher(body []byte) error {
	events, err := webhook.NormalizeBlockCypher(body)
	if err != nil {
		return err
	}

	for _, evt := range events {
		g.mon.Inject(evt)
	}
	return nil
}

// SupportedCurrencies lists the currencies whose chain family has a
// registered adapter.
func (g *Gateway) SupportedCurrencies() []types.Currency {
	var out []types.Currency
	for currency := range types.SupportedCurrencies {
		if _, ok := g.chainClients[currency.Family()]; ok {
			out = append(out, currency)
		}
	}
	return out
}

// Close stops the background loops, cancels every watch, waits for pending
// webhook deliveries, and closes the chain clients.
func (g *Gateway) Close() {
	if g.cancel != nil {
		g.cancel()
	}

	g.mon.StopAll()
	g.payments.Close()

	for _, client := range g.chainClients {
		client.Close()
	}
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version": Version,
		"supported_currencies": []string{
			"BTC", "ETH", "USDT", "STX", "sBTC",
		},
		"chain_families": []string{
			"bitcoin", "ethereum", "stacks",
		},
	}
}
