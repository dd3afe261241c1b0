package workers

import (
	"context"
	"time"

	"briefly-server/logger"
)

// Reconciler re-checks locked documents against the chain.
type Reconciler interface {
	ReconcileLocked(ctx context.Context) (int, error)
}

// PollEscrow periodically unlocks documents paid outside the server. It
// blocks until ctx is cancelled.
func PollEscrow(ctx context.Context, r Reconciler, pollInterval time.Duration, log *logger.Logger) {
	log.Info("Starting escrow reconcile polling", "interval", pollInterval.String())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Escrow reconcile polling stopped")
			return
		case <-ticker.C:
			start := time.Now()
			unlocked, err := r.ReconcileLocked(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error("Escrow reconcile failed", "error", err)
				continue
			}
			if unlocked > 0 {
				log.Info("Escrow reconcile unlocked documents", "count", unlocked, "took", time.Since(start).String())
			} else {
				log.Debug("Escrow reconcile found no new payments")
			}
		}
	}
}
