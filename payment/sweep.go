package payment

import (
	"context"
	"time"

	"github.com/vitwit/paygate/logger"
)

// Sweep is the periodic task that reaps stale PENDING payments and re-seeds
// watches for live ones. Registration is idempotent, so re-seeding an active
// watch is a no-op; it restores watches lost to the ceiling or a restart.
type Sweep struct {
	svc      *Service
	interval time.Duration
	log      logger.Logger
}

func NewSweep(svc *Service, interval time.Duration, log logger.Logger) *Sweep {
	return &Sweep{svc: svc, interval: interval, log: log}
}

// Run sweeps on the configured cadence until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one sweep pass. Exposed so tests and the facade can sweep
// without waiting for the ticker.
func (s *Sweep) Tick() {
	now := s.svc.now()

	for _, p := range s.svc.store.FindPending() {
		if now.After(p.ExpiresAt) {
			if _, err := s.svc.Expire(p.ID); err != nil {
				s.log.Error("expiry failed", map[string]any{
					"paymentId": p.ID,
					"error":     err.Error(),
				})
			}
			continue
		}

		if err := s.svc.mon.Start(p.Currency, p.Address, p.ID); err != nil {
			s.log.Warn("re-seeding watch failed", map[string]any{
				"paymentId": p.ID,
				"error":     err.Error(),
			})
		}
	}
}
