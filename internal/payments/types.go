package payments

import (
	"errors"
	"strings"
	"time"

	"palengke.dev/internal/ledger"
)

// Method is the closed set of payment methods. New methods must be added
// here and handled in every switch; there is no string passthrough.
type Method string

const (
	MethodGcash Method = "gcash"
	MethodMaya  Method = "maya"
	MethodCard  Method = "card"
	MethodCOD   Method = "cod"
)

// ParseMethod normalizes and validates a wire-level method string.
func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodGcash:
		return MethodGcash, nil
	case MethodMaya:
		return MethodMaya, nil
	case MethodCard:
		return MethodCard, nil
	case MethodCOD:
		return MethodCOD, nil
	default:
		return "", ErrUnknownMethod
	}
}

// CashOnDelivery reports whether the method bypasses the processor.
func (m Method) CashOnDelivery() bool { return m == MethodCOD }

// Status is the payment attempt lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further processor-driven transition applies.
// failed is terminal for the attempt but retryable via a new intent.
func (s Status) Terminal() bool { return s == StatusPaid || s == StatusFailed }

// Payment is one payment attempt row per order. Retries reuse the row and
// bump AttemptCount; there is never more than one non-terminal Payment per
// order.
type Payment struct {
	ID                string       `json:"id"`
	OrderRef          string       `json:"order_ref"`
	PayerRef          string       `json:"payer_ref"`
	SellerRef         string       `json:"seller_ref"`
	Amount            ledger.Money `json:"amount"`
	Method            Method       `json:"method"`
	Status            Status       `json:"status"`
	ProcessorIntentID string       `json:"processor_intent_id,omitempty"`
	ProcessorSourceID string       `json:"processor_source_id,omitempty"`
	AttemptCount      int          `json:"attempt_count"`
	LastAttemptAt     *time.Time   `json:"last_attempt_at,omitempty"`
	FailureReason     string       `json:"failure_reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// CashOnDelivery reports whether this payment settles on delivery
// confirmation instead of a processor event.
func (p Payment) CashOnDelivery() bool { return p.Method.CashOnDelivery() }

// EventStatus is the processor-reported payment status carried by a webhook.
type EventStatus string

const (
	EventSucceeded  EventStatus = "succeeded"
	EventFailed     EventStatus = "failed"
	EventProcessing EventStatus = "processing"
)

// ProcessorEvent is one logical notification from the processor, identified
// by the processor-assigned event id (the idempotency key).
type ProcessorEvent struct {
	EventID       string            `json:"event_id"`
	IntentID      string            `json:"intent_id"`
	Status        EventStatus       `json:"status"`
	SourceID      string            `json:"source_id,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ApplyResult reports what an event application did. Duplicate and Ignored
// are both acked upstream; neither mutates state twice.
type ApplyResult struct {
	Payment     Payment             `json:"payment"`
	Transaction *ledger.Transaction `json:"transaction,omitempty"`
	Duplicate   bool                `json:"duplicate"`
	Ignored     bool                `json:"ignored"`
}

// CreateParams describes a checkout-initiated payment attempt.
type CreateParams struct {
	OrderRef  string
	PayerRef  string
	SellerRef string
	Amount    ledger.Money
	Method    Method
}

var (
	ErrNotFound          = errors.New("payment not found")
	ErrMissingReference  = errors.New("order and seller references are required")
	ErrUnknownMethod     = errors.New("unknown payment method")
	ErrInvalidTransition = errors.New("invalid payment state transition")
	ErrOrderAlreadyPaid  = errors.New("order already paid")
	ErrNotCashOnDelivery = errors.New("payment is not cash-on-delivery")
)
