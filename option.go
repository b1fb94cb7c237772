package paygate

import (
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/payment"
	"github.com/vitwit/paygate/rates"
	"github.com/vitwit/paygate/wallet"
)

type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.rec = r
	}
}

// WithStore replaces the in-memory payment store with an external one.
func WithStore(s payment.Store) Option {
	return func(g *Gateway) {
		g.store = s
	}
}

// WithRateStore replaces the persistent tier of the rate cache.
func WithRateStore(s rates.RateStore) Option {
	return func(g *Gateway) {
		g.rateStore = s
	}
}

// WithRateSource replaces the external price feed.
func WithRateSource(s rates.Source) Option {
	return func(g *Gateway) {
		g.rateSource = s
	}
}

// WithWalletProvider replaces the address-provisioning collaborator.
func WithWalletProvider(p wallet.Provider) Option {
	return func(g *Gateway) {
		g.wallets = p
	}
}
