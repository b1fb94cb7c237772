package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment request.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	// StatusPartial is reserved for future partial-amount handling.
	// No code path currently produces it.
	StatusPartial   PaymentStatus = "PARTIAL"
	StatusConfirmed PaymentStatus = "CONFIRMED"
	StatusExpired   PaymentStatus = "EXPIRED"
	StatusFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition out of this status is legal.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusExpired || s == StatusFailed
}

// WebhookEvent names the merchant-facing notification types.
type WebhookEvent string

const (
	EventPaymentCreated   WebhookEvent = "payment.created"
	EventPaymentConfirmed WebhookEvent = "payment.confirmed"
	EventPaymentExpired   WebhookEvent = "payment.expired"
	EventPaymentFailed    WebhookEvent = "payment.failed"
)

// Payment is a merchant's request to receive funds on a specific address.
// It is created once, mutated only by the confirmation matcher or the expiry
// sweep, and retained as an audit record after reaching a terminal state.
type Payment struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	USDAmount   decimal.Decimal `json:"usdAmount"`
	Memo        string          `json:"memo"`
	Description string          `json:"description,omitempty"`
	Address     string          `json:"address"`
	// URI is the wallet-app payment link encoded into the QR code shown
	// to the payer.
	URI         string               `json:"uri,omitempty"`
	WebhookURL  string               `json:"webhookUrl,omitempty"`
	Status      PaymentStatus        `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	ExpiresAt   time.Time            `json:"expiresAt"`
	ConfirmedAt *time.Time           `json:"confirmedAt,omitempty"`
	ConfirmedTx *ObservedTransaction `json:"confirmedTx,omitempty"`
}

// PaymentRequest is the inbound shape accepted by the request layer.
type PaymentRequest struct {
	Amount      string   `json:"amount" validate:"required"`
	Currency    Currency `json:"currency" validate:"required"`
	Memo        string   `json:"memo,omitempty"`
	Description string   `json:"description,omitempty"`
	// ExpiresIn overrides the default payment TTL, in seconds.
	ExpiresIn  int64  `json:"expiresIn,omitempty" validate:"omitempty,gt=0"`
	WebhookURL string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// PaymentFilter narrows List queries.
type PaymentFilter struct {
	Status   PaymentStatus `json:"status,omitempty"`
	Currency Currency      `json:"currency,omitempty"`
	Limit    int           `json:"limit,omitempty"`
	Offset   int           `json:"offset,omitempty"`
}

// PaymentStats aggregates a user's payments by status.
type PaymentStats struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Confirmed    int             `json:"confirmed"`
	Expired      int             `json:"expired"`
	Failed       int             `json:"failed"`
	ConfirmedUSD decimal.Decimal `json:"confirmedUsd"`
}

// ObservedTransaction is a chain-reported transfer normalized across chains.
// Amounts are in chain-native decimal units (BTC, ETH, STX), never in the
// chain's integer base unit.
type ObservedTransaction struct {
	TxHash        string          `json:"txHash"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	Timestamp     time.Time       `json:"timestamp"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
}

// DetectedTransaction is the event emitted when a poll tick or a push
// notification reveals a qualifying transfer on a watched address.
type DetectedTransaction struct {
	PaymentID string              `json:"paymentId"`
	Currency  Currency            `json:"currency"`
	Address   string              `json:"address"`
	Tx        ObservedTransaction `json:"transaction"`
}

// Balance is an address balance normalized to chain-native decimal units.
type Balance struct {
	Confirmed   decimal.Decimal `json:"confirmed"`
	Unconfirmed decimal.Decimal `json:"unconfirmed"`
	Total       decimal.Decimal `json:"total"`
}

// RateEntry is a cached currency-to-USD rate with bounded staleness.
type RateEntry struct {
	Currency  Currency        `json:"currency"`
	USDRate   decimal.Decimal `json:"usdRate"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// WatchedAddress describes one active monitor registration.
type WatchedAddress struct {
	Currency  Currency  `json:"currency"`
	Address   string    `json:"address"`
	PaymentID string    `json:"paymentId"`
	StartedAt time.Time `json:"startedAt"`
	// ExpiresAt is the hard watch ceiling, independent of the payment's
	// own expiry.
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClientConfig contains configuration for one chain adapter.
type ClientConfig struct {
	RPCUrl   string `json:"rpcUrl,omitempty"`
	APIUrl   string `json:"apiUrl,omitempty"`
	APIToken string `json:"apiToken,omitempty"`
	// Confirmations overrides the chain family's default threshold.
	Confirmations int64         `json:"confirmations,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	// BlockWindow is how many recent blocks the Ethereum-family adapter
	// scans per transaction query.
	BlockWindow uint64 `json:"blockWindow,omitempty"`
}

// GatewayConfig contains global configuration for the payment core.
type GatewayConfig struct {
	DefaultTimeout    time.Duration   `json:"defaultTimeout,omitempty"`
	PollInterval      time.Duration   `json:"pollInterval,omitempty"`
	WatchCeiling      time.Duration   `json:"watchCeiling,omitempty"`
	PaymentTTL        time.Duration   `json:"paymentTtl,omitempty"`
	RateTTL           time.Duration   `json:"rateTtl,omitempty"`
	SweepInterval     time.Duration   `json:"sweepInterval,omitempty"`
	MatchTolerance    decimal.Decimal `json:"matchTolerance,omitempty"`
	WebhookMaxRetries int             `json:"webhookMaxRetries,omitempty"`
	WebhookBackoff    time.Duration   `json:"webhookBackoff,omitempty"`
	WebhookTimeout    time.Duration   `json:"webhookTimeout,omitempty"`
	WebhookSecret     string          `json:"webhookSecret,omitempty"`
	LogLevel          string          `json:"logLevel,omitempty"`
	EnableMetrics     bool            `json:"enableMetrics,omitempty"`
}
