package payment

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/types"
)

// Matcher consumes detected-transaction events and decides whether they
// confirm an open payment. It is the single writer of CONFIRMED transitions;
// the monitor only detects.
type Matcher struct {
	svc       *Service
	events    <-chan types.DetectedTransaction
	tolerance decimal.Decimal

	log logger.Logger
	rec metrics.Recorder
}

// NewMatcher creates a matcher over the monitor's event stream. tolerance is
// the absolute amount difference still treated as a match, absorbing
// floating-point and fee rounding.
func NewMatcher(svc *Service, events <-chan types.DetectedTransaction, tolerance decimal.Decimal, log logger.Logger, rec metrics.Recorder) *Matcher {
	return &Matcher{
		svc:       svc,
		events:    events,
		tolerance: tolerance,
		log:       log,
		rec:       rec,
	}
}

// Run consumes events until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-m.events:
			m.handle(evt)
		}
	}
}

func (m *Matcher) handle(evt types.DetectedTransaction) {
	paymentID := evt.PaymentID
	if paymentID == "" {
		// Push-ingested events arrive keyed by address only.
		p, ok := m.svc.store.FindPendingByAddress(evt.Currency, evt.Address)
		if !ok {
			m.discard(evt, "no open payment for address")
			return
		}
		paymentID = p.ID
	}

	p, ok := m.svc.store.Get(paymentID)
	if !ok {
		m.discard(evt, "payment not found")
		return
	}
	if p.Status.IsTerminal() {
		// Duplicate or stale event from an overlapping tick.
		m.discard(evt, "payment already terminal")
		return
	}

	diff := evt.Tx.Amount.Sub(p.Amount).Abs()
	if diff.GreaterThan(m.tolerance) {
		m.discard(evt, "amount outside tolerance")
		return
	}

	if _, err := m.svc.Confirm(p.ID, evt.Tx); err != nil {
		m.log.Error("confirm failed", map[string]any{
			"paymentId": p.ID,
			"txHash":    evt.Tx.TxHash,
			"error":     err.Error(),
		})
	}
}

func (m *Matcher) discard(evt types.DetectedTransaction, reason string) {
	m.log.Debug("event discarded", map[string]any{
		"currency": evt.Currency,
		"address":  evt.Address,
		"txHash":   evt.Tx.TxHash,
		"reason":   reason,
	})
	m.rec.IncCounter("events_discarded", map[string]string{"currency": string(evt.Currency)})
}
