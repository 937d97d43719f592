// Package processor defines the abstract contract the settlement engine
// needs from a payment processor. It is deliberately vendor-neutral; the
// wire format of any one provider stays behind Client implementations.
package processor

import (
	"context"
	"errors"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

// IntentStatus is the processor-side status of a payment intent.
type IntentStatus string

const (
	IntentProcessing IntentStatus = "processing"
	IntentSucceeded  IntentStatus = "succeeded"
	IntentFailed     IntentStatus = "failed"
)

// Transaction is one row of the processor's own transaction listing, used by
// reconciliation as the external record of truth.
type Transaction struct {
	ProcessorPaymentID string    `json:"processor_payment_id"`
	Currency           string    `json:"currency"`
	Amount             int64     `json:"amount"`
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
}

// Client is the outbound processor surface. All calls are bounded by the
// caller's context; transient failures surface as ErrUnavailable.
type Client interface {
	CreateIntent(ctx context.Context, amount ledger.Money, method payments.Method) (string, error)
	GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error)
	ListTransactions(ctx context.Context, w ledger.Window) ([]Transaction, error)
}

// ErrUnavailable marks a transient processor failure worth retrying.
var ErrUnavailable = errors.New("payment processor unavailable")
