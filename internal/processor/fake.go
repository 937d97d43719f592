package processor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

// Fake is an in-memory processor for tests and the smoke binary. Intents
// succeed or fail under test control and the transaction listing can be
// seeded to exercise reconciliation drift.
type Fake struct {
	mu      sync.Mutex
	intents map[string]IntentStatus
	txs     []Transaction

	// FailNext makes the next CreateIntent return ErrUnavailable once.
	FailNext bool
}

// NewFake returns an empty fake processor.
func NewFake() *Fake {
	return &Fake{intents: make(map[string]IntentStatus)}
}

func (f *Fake) CreateIntent(ctx context.Context, amount ledger.Money, method payments.Method) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext {
		f.FailNext = false
		return "", ErrUnavailable
	}
	if !amount.IsPositive() {
		return "", ledger.ErrInvalidAmount
	}
	id := "pi_" + uuid.NewString()
	f.intents[id] = IntentProcessing
	return id, nil
}

func (f *Fake) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.intents[intentID]
	if !ok {
		return "", ErrUnavailable
	}
	return status, nil
}

func (f *Fake) ListTransactions(ctx context.Context, w ledger.Window) ([]Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Transaction
	for _, tx := range f.txs {
		if w.Contains(tx.Timestamp) {
			res = append(res, tx)
		}
	}
	return res, nil
}

// Complete flips an intent terminal and mirrors it into the listing, the way
// a real processor's books would show the captured payment.
func (f *Fake) Complete(intentID string, status IntentStatus, amount ledger.Money, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[intentID] = status
	if status == IntentSucceeded {
		f.txs = append(f.txs, Transaction{
			ProcessorPaymentID: intentID,
			Currency:           amount.Currency,
			Amount:             amount.Amount,
			Status:             string(IntentSucceeded),
			Timestamp:          at,
		})
	}
}

// Seed appends a raw listing row, for reconciliation drift scenarios.
func (f *Fake) Seed(tx Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}
