// Package settle drives scheduled maturation of pending seller funds. The
// money movement itself lives in the ledger; the runner only decides when a
// transaction has cleared the hold window and reports what moved.
package settle

import (
	"context"
	"time"

	"palengke.dev/internal/audit"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
)

// Runner settles matured funds on a fixed interval.
type Runner struct {
	ledger   ledger.Service
	hold     time.Duration
	interval time.Duration

	now func() time.Time
}

// NewRunner returns a runner that, each interval, settles every unsettled
// transaction older than the hold window (funds held for refund exposure).
func NewRunner(led ledger.Service, hold, interval time.Duration) *Runner {
	return &Runner{
		ledger:   led,
		hold:     hold,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until ctx ends, running one settlement pass per tick. A pass
// is atomic per seller inside the ledger, so cancellation mid-schedule never
// strands partially moved funds.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				obs.Event("settle.run_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RunOnce performs a single settlement pass and returns the per-seller
// results. An empty slice means nothing had matured.
func (r *Runner) RunOnce(ctx context.Context) ([]ledger.Settlement, error) {
	maturedBefore := r.now().Add(-r.hold)
	results, err := r.ledger.Settle(ctx, maturedBefore)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, s := range results {
		total += s.Amount
		_ = audit.LogEvent(ctx, "settle.seller", map[string]any{
			"seller_ref":   s.SellerRef,
			"amount":       s.Amount,
			"transactions": s.Transactions,
		})
	}
	if total > 0 {
		obs.AddSettledMinorUnits(total)
	}
	if len(results) > 0 {
		obs.Event("settle.run", map[string]any{
			"sellers":        len(results),
			"amount_total":   total,
			"matured_before": maturedBefore,
		})
	}
	return results, nil
}
