// Package webhook delivers signed merchant notifications with bounded retry,
// and normalizes inbound provider push notifications into detected
// transaction events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
)

const userAgent = "paygate-webhook/1.0"

// Payload is the JSON body POSTed to the merchant's webhook URL.
type Payload struct {
	Event       types.WebhookEvent `json:"event"`
	Payment     PaymentInfo        `json:"payment"`
	Transaction *TransactionInfo   `json:"transaction,omitempty"`
}

type PaymentInfo struct {
	ID          string              `json:"id"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    types.Currency      `json:"currency"`
	Status      types.PaymentStatus `json:"status"`
	ConfirmedAt *time.Time          `json:"confirmedAt,omitempty"`
}

type TransactionInfo struct {
	TxHash        string          `json:"txHash"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
}

// Dispatcher POSTs signed payloads to merchant endpoints.
type Dispatcher struct {
	secret     string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client

	log logger.Logger
	rec metrics.Recorder
}

// NewDispatcher creates a dispatcher. secret signs every delivery unless the
// merchant configured their own; maxRetries and backoff bound the retry loop.
func NewDispatcher(secret string, maxRetries int, backoff, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Dispatcher{
		secret:     secret,
		maxRetries: maxRetries,
		backoff:    backoff,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		rec:        rec,
	}
}

// Deliver serializes the payload, signs it with HMAC-SHA256, and POSTs it to
// url, retrying with exponential backoff on transport failure or a non-2xx
// response. Delivery is at-least-once: a merchant endpoint must tolerate
// duplicate notifications. The signature proves authenticity, it does not
// deduplicate; deduplication is the receiver's responsibility.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload marshal failed: %w", err)
	}

	signature := Signature(body, d.secret)

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if attempt > 1 {
			delay := d.backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		lastErr = d.post(ctx, url, body, signature)
		d.rec.ObserveLatency("webhook_delivery", time.Since(start), map[string]string{"currency": string(payload.Payment.Currency)})
		if lastErr == nil {
			d.log.Info("webhook delivered", map[string]any{
				"url":     url,
				"event":   payload.Event,
				"attempt": attempt,
			})
			d.rec.IncCounter("webhook_deliveries", map[string]string{"currency": string(payload.Payment.Currency)})
			return nil
		}

		d.log.Warn("webhook delivery attempt failed", map[string]any{
			"url":     url,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
	}

	d.rec.IncCounter("webhook_failures", map[string]string{"currency": string(payload.Payment.Currency)})
	return &types.GatewayError{
		Code:    types.ErrDeliveryFailed,
		Message: fmt.Sprintf("webhook delivery to %s failed after %d attempts: %v", url, d.maxRetries, lastErr),
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Signature computes the hex-encoded HMAC-SHA256 of body under secret.
// Merchants recompute it over the raw request body to verify authenticity.
func Signature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
