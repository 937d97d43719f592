package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"palengke.dev/internal/audit"
	"palengke.dev/internal/ids"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
	"palengke.dev/internal/processor"
)

// Runner compares the local ledger against the processor's listing on a
// schedule. It reads a consistent snapshot of both sides and writes only
// discrepancy reports; correcting money state is a human decision.
type Runner struct {
	ledger    ledger.Service
	processor processor.Client
	store     Store

	interval time.Duration
	lag      time.Duration

	now func() time.Time
}

// NewRunner builds a runner reconciling windows of length lag, ending lag
// before now (i.e. "yesterday" with a 24h lag and 24h interval).
func NewRunner(led ledger.Service, proc processor.Client, store Store, interval, lag time.Duration) *Runner {
	return &Runner{
		ledger:    led,
		processor: proc,
		store:     store,
		interval:  interval,
		lag:       lag,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks, running one reconciliation per tick until ctx ends. Each run
// is independently atomic; cancellation between runs loses nothing.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w := r.currentWindow()
			if _, err := r.Run(ctx, w); err != nil {
				obs.Event("recon.run_failed", map[string]any{
					"error": err.Error(),
					"from":  w.From,
					"to":    w.To,
				})
			}
		}
	}
}

func (r *Runner) currentWindow() ledger.Window {
	end := r.now().Add(-r.lag).Truncate(24 * time.Hour)
	return ledger.Window{From: end.Add(-r.lag), To: end}
}

// Run reconciles one window. A processor fetch failure aborts cleanly with
// ErrFetchFailed and no report is written.
func (r *Runner) Run(ctx context.Context, w ledger.Window) (Report, error) {
	remote, err := r.processor.ListTransactions(ctx, w)
	if err != nil {
		obs.CountReconRun("failed")
		return Report{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	local, err := r.ledger.ListTransactions(ctx, w)
	if err != nil {
		obs.CountReconRun("failed")
		return Report{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	report := Report{
		ID:         ids.NewPrefixed("rec"),
		RunAt:      r.now(),
		Window:     w,
		Mismatches: diff(local, remote),
	}
	if err := r.store.SaveReport(ctx, report); err != nil {
		obs.CountReconRun("failed")
		return Report{}, err
	}

	for _, m := range report.Mismatches {
		obs.CountReconMismatch(string(m.Kind))
	}
	result := "clean"
	if !report.Clean() {
		result = "mismatched"
	}
	obs.CountReconRun(result)
	_ = audit.LogEvent(ctx, "recon.run", map[string]any{
		"report_id":  report.ID,
		"from":       w.From,
		"to":         w.To,
		"mismatches": len(report.Mismatches),
	})
	return report, nil
}

// diff computes the symmetric difference keyed by processor payment id, plus
// amount and status mismatches on the intersection. Cash-on-delivery rows
// carry no processor id and are excluded: the processor cannot know them.
func diff(local []ledger.Transaction, remote []processor.Transaction) []Mismatch {
	localByRef := make(map[string]ledger.Transaction, len(local))
	for _, tx := range local {
		if tx.ProcessorPaymentID == "" {
			continue
		}
		localByRef[tx.ProcessorPaymentID] = tx
	}
	remoteByRef := make(map[string]processor.Transaction, len(remote))
	for _, tx := range remote {
		remoteByRef[tx.ProcessorPaymentID] = tx
	}

	var mismatches []Mismatch

	for ref, rtx := range remoteByRef {
		ltx, ok := localByRef[ref]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:         KindMissingLocally,
				ProcessorRef: ref,
				AmountDelta:  rtx.Amount,
				Detail:       "processor transaction has no local record",
			})
			continue
		}
		if rtx.Amount != ltx.GrossAmount {
			mismatches = append(mismatches, Mismatch{
				Kind:         KindAmountMismatch,
				LocalRef:     ltx.ID,
				ProcessorRef: ref,
				AmountDelta:  rtx.Amount - ltx.GrossAmount,
				Detail:       fmt.Sprintf("processor %d vs local %d", rtx.Amount, ltx.GrossAmount),
			})
		}
		if !statusesAgree(ltx.Status, rtx.Status) {
			mismatches = append(mismatches, Mismatch{
				Kind:         KindStatusMismatch,
				LocalRef:     ltx.ID,
				ProcessorRef: ref,
				Detail:       fmt.Sprintf("processor %q vs local %q", rtx.Status, ltx.Status),
			})
		}
	}

	for ref, ltx := range localByRef {
		if _, ok := remoteByRef[ref]; !ok {
			mismatches = append(mismatches, Mismatch{
				Kind:         KindMissingRemotely,
				LocalRef:     ltx.ID,
				ProcessorRef: ref,
				AmountDelta:  -ltx.GrossAmount,
				Detail:       "local transaction missing from processor listing",
			})
		}
	}

	// Deterministic report ordering regardless of map iteration.
	sort.Slice(mismatches, func(i, j int) bool {
		if mismatches[i].Kind != mismatches[j].Kind {
			return mismatches[i].Kind < mismatches[j].Kind
		}
		if mismatches[i].ProcessorRef != mismatches[j].ProcessorRef {
			return mismatches[i].ProcessorRef < mismatches[j].ProcessorRef
		}
		return mismatches[i].LocalRef < mismatches[j].LocalRef
	})
	return mismatches
}

func statusesAgree(local ledger.TransactionStatus, remote string) bool {
	switch local {
	case ledger.StatusSucceeded:
		return remote == "succeeded"
	case ledger.StatusReversed:
		return remote == "refunded" || remote == "reversed"
	default:
		return false
	}
}
