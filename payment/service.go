// Package payment implements the payment lifecycle state machine, the
// confirmation matcher that drives it, and the expiry sweep.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/metrics"
	"github.com/vitwit/paygate/monitor"
	"github.com/vitwit/paygate/rates"
	"github.com/vitwit/paygate/types"
	"github.com/vitwit/paygate/utils"
	"github.com/vitwit/paygate/wallet"
	"github.com/vitwit/paygate/webhook"
)

// Service owns all payment state transitions. Transitions are serialized
// under a single mutex so that at most one CONFIRMED transition is ever
// externally observable per payment: first wins, the rest are no-ops.
type Service struct {
	store      Store
	wallets    wallet.Provider
	rates      *rates.Cache
	mon        *monitor.Monitor
	dispatcher *webhook.Dispatcher

	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time

	log logger.Logger
	rec metrics.Recorder

	// mu guards transitions only, never adapter or webhook I/O.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewService wires the lifecycle service.
func NewService(
	store Store,
	wallets wallet.Provider,
	rateCache *rates.Cache,
	mon *monitor.Monitor,
	dispatcher *webhook.Dispatcher,
	ttl time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *Service {
	return &Service{
		store:      store,
		wallets:    wallets,
		rates:      rateCache,
		mon:        mon,
		dispatcher: dispatcher,
		ttl:        ttl,
		validate:   validator.New(),
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
		rec:        rec,
	}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Create validates the request, resolves a receiving address, freezes the USD
// amount with the current rate, persists a PENDING payment, and starts
// watching the address.
func (s *Service) Create(ctx context.Context, userID string, req *types.PaymentRequest) (*types.Payment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &types.GatewayError{
			Code:    types.ErrInvalidRequest,
			Message: fmt.Sprintf("invalid payment request: %v", err),
		}
	}

	if !req.Currency.IsSupported() {
		return nil, &types.GatewayError{
			Code:    types.ErrUnsupportedCurrency,
			Message: fmt.Sprintf("unsupported currency: %s", req.Currency),
		}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &types.GatewayError{
			Code:    types.ErrInvalidRequest,
			Message: fmt.Sprintf("invalid amount: %q", req.Amount),
		}
	}

	address, err := s.wallets.GetOrCreate(userID, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("address provisioning failed: %w", err)
	}
	if err := utils.ValidateAddressForCurrency(address, req.Currency); err != nil {
		return nil, &types.GatewayError{
			Code:    types.ErrInvariantViolation,
			Message: fmt.Sprintf("wallet provider returned a malformed address: %v", err),
		}
	}

	// GetRate never fails; it degrades to 1 on price-feed trouble so that
	// creation does not block on rate availability.
	rate := s.rates.GetRate(ctx, req.Currency)

	now := s.now()
	ttl := s.ttl
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	memo := req.Memo
	if memo == "" {
		memo = fmt.Sprintf("Payment for %s %s", amount, req.Currency)
	}

	p := &types.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Currency:    req.Currency,
		USDAmount:   amount.Mul(rate),
		Memo:        memo,
		Description: req.Description,
		Address:     address,
		URI:         utils.PaymentURI(req.Currency, address, amount.String(), memo),
		WebhookURL:  req.WebhookURL,
		Status:      types.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	s.store.Put(p)

	if err := s.mon.Start(p.Currency, p.Address, p.ID); err != nil {
		s.log.Warn("could not start watch for new payment", map[string]any{
			"paymentId": p.ID,
			"error":     err.Error(),
		})
	}

	s.log.Info("payment created", map[string]any{
		"paymentId": p.ID,
		"currency":  p.Currency,
		"amount":    p.Amount,
		"expiresAt": p.ExpiresAt,
	})
	s.rec.IncCounter("payments_created", map[string]string{"currency": string(p.Currency)})

	return p, nil
}

// Confirm transitions a PENDING payment to CONFIRMED. Confirming an
// already-terminal payment is a no-op returning the existing record: the
// confirmation timestamp is never rewritten and no second webhook is sent.
func (s *Service) Confirm(paymentID string, tx types.ObservedTransaction) (*types.Payment, error) {
	s.mu.Lock()
	p, ok := s.store.Get(paymentID)
	if !ok {
		s.mu.Unlock()
		return nil, &types.GatewayError{Code: types.ErrNotFound, Message: "payment not found: " + paymentID}
	}

	if p.Status.IsTerminal() {
		s.mu.Unlock()
		return p, nil
	}

	if p.Status != types.StatusPending {
		s.mu.Unlock()
		return nil, &types.GatewayError{
			Code:    types.ErrInvariantViolation,
			Message: fmt.Sprintf("confirm on payment %s in state %s", paymentID, p.Status),
		}
	}

	now := s.now()
	p.Status = types.StatusConfirmed
	p.ConfirmedAt = &now
	p.ConfirmedTx = &tx
	s.store.Put(p)
	s.mu.Unlock()

	s.mon.Stop(p.Currency, p.Address)

	s.log.Info("payment confirmed", map[string]any{
		"paymentId": p.ID,
		"txHash":    tx.TxHash,
		"amount":    tx.Amount,
	})
	s.rec.IncCounter("payments_confirmed", map[string]string{"currency": string(p.Currency)})

	if p.WebhookURL != "" {
		s.dispatch(p, &tx)
	}

	return p, nil
}

// Expire transitions a PENDING payment to EXPIRED. Expiring an
// already-terminal payment is a no-op, so a late confirmation can never be
// overwritten and an expired payment can never be revived.
func (s *Service) Expire(paymentID string) (*types.Payment, error) {
	s.mu.Lock()
	p, ok := s.store.Get(paymentID)
	if !ok {
		s.mu.Unlock()
		return nil, &types.GatewayError{Code: types.ErrNotFound, Message: "payment not found: " + paymentID}
	}

	if p.Status.IsTerminal() {
		s.mu.Unlock()
		return p, nil
	}

	if p.Status != types.StatusPending {
		s.mu.Unlock()
		return nil, &types.GatewayError{
			Code:    types.ErrInvariantViolation,
			Message: fmt.Sprintf("expire on payment %s in state %s", paymentID, p.Status),
		}
	}

	p.Status = types.StatusExpired
	s.store.Put(p)
	s.mu.Unlock()

	s.mon.Stop(p.Currency, p.Address)

	s.log.Info("payment expired", map[string]any{"paymentId": p.ID})
	s.rec.IncCounter("payments_expired", map[string]string{"currency": string(p.Currency)})

	return p, nil
}

// Get returns a payment scoped to its owning user.
func (s *Service) Get(paymentID, userID string) (*types.Payment, error) {
	p, ok := s.store.Get(paymentID)
	if !ok || p.UserID != userID {
		return nil, &types.GatewayError{Code: types.ErrNotFound, Message: "payment not found: " + paymentID}
	}
	return p, nil
}

// List returns the user's payments, newest first.
func (s *Service) List(userID string, filter types.PaymentFilter) []*types.Payment {
	return s.store.List(userID, filter)
}

// Stats aggregates the user's payments by status.
func (s *Service) Stats(userID string) *types.PaymentStats {
	stats := &types.PaymentStats{ConfirmedUSD: decimal.Zero}
	for _, p := range s.store.List(userID, types.PaymentFilter{}) {
		stats.Total++
		switch p.Status {
		case types.StatusPending:
			stats.Pending++
		case types.StatusConfirmed:
			stats.Confirmed++
			stats.ConfirmedUSD = stats.ConfirmedUSD.Add(p.USDAmount)
		case types.StatusExpired:
			stats.Expired++
		case types.StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Close waits for in-flight webhook deliveries to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// dispatch sends the confirmation webhook asynchronously. The transition has
// already been persisted; a delivery failure is logged but never rolls the
// payment back.
func (s *Service) dispatch(p *types.Payment, tx *types.ObservedTransaction) {
	payload := webhook.Payload{
		Event: types.EventPaymentConfirmed,
		Payment: webhook.PaymentInfo{
			ID:          p.ID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Status:      p.Status,
			ConfirmedAt: p.ConfirmedAt,
		},
		Transaction: &webhook.TransactionInfo{
			TxHash:        tx.TxHash,
			Amount:        tx.Amount,
			Confirmations: tx.Confirmations,
		},
	}

	url := p.WebhookURL
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.dispatcher.Deliver(context.Background(), url, payload); err != nil {
			s.log.Error("webhook delivery failed", map[string]any{
				"paymentId": p.ID,
				"url":       url,
				"error":     err.Error(),
			})
		}
	}()
}
