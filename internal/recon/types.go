package recon

import (
	"context"
	"errors"
	"sync"
	"time"

	"palengke.dev/internal/ledger"
)

// Kind classifies one reconciliation anomaly.
type Kind string

const (
	// KindMissingLocally: the processor has a transaction we never recorded.
	KindMissingLocally Kind = "missing_locally"
	// KindMissingRemotely: we recorded a transaction the processor does not
	// list. Possible local corruption or a processor-side reversal.
	KindMissingRemotely Kind = "missing_remotely"
	// KindAmountMismatch: both sides exist, amounts differ. Zero tolerance.
	KindAmountMismatch Kind = "amount_mismatch"
	// KindStatusMismatch: terminal states disagree.
	KindStatusMismatch Kind = "status_mismatch"
)

// Mismatch is one discrepancy row. ProcessorRef or LocalRef may be empty
// when one side is missing.
type Mismatch struct {
	Kind         Kind   `json:"kind"`
	LocalRef     string `json:"local_ref,omitempty"`
	ProcessorRef string `json:"processor_ref,omitempty"`
	AmountDelta  int64  `json:"amount_delta"`
	Detail       string `json:"detail,omitempty"`
}

// Report is the output of one reconciliation run. Purely observational: the
// job never mutates payments, transactions or balances.
type Report struct {
	ID         string        `json:"id"`
	RunAt      time.Time     `json:"run_at"`
	Window     ledger.Window `json:"window"`
	Mismatches []Mismatch    `json:"mismatches"`
}

// Clean reports whether the run found both sides identical.
func (r Report) Clean() bool { return len(r.Mismatches) == 0 }

// ErrFetchFailed aborts a run with no partial report; the next scheduled
// run retries.
var ErrFetchFailed = errors.New("reconciliation fetch failed")

// Store persists discrepancy reports.
type Store interface {
	SaveReport(ctx context.Context, r Report) error
	ListReports(ctx context.Context, w ledger.Window) ([]Report, error)
}

// InMemoryStore backs tests and the smoke binary.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports []Report
}

func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

func (s *InMemoryStore) SaveReport(ctx context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *InMemoryStore) ListReports(ctx context.Context, w ledger.Window) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Report
	for _, r := range s.reports {
		if w.Contains(r.RunAt) {
			res = append(res, r)
		}
	}
	return res, nil
}
