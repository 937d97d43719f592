// Package webhook ingests asynchronous, at-least-once processor
// notifications and drives the payment state machine exactly once per
// logical event.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"palengke.dev/internal/audit"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
	"palengke.dev/internal/payments"
)

// Event is the inbound wire payload. ProcessorPaymentID names the intent the
// event belongs to; EventID is the processor-assigned idempotency key.
type Event struct {
	EventID            string            `json:"event_id"`
	ProcessorPaymentID string            `json:"processor_payment_id"`
	Status             string            `json:"status"`
	SourceID           string            `json:"source_id,omitempty"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Ack results. Everything except a bad signature or an internal fault acks,
// so the processor stops retrying events we have already absorbed.
const (
	ResultApplied        = "applied"
	ResultDuplicate      = "duplicate"
	ResultOutOfOrder     = "out_of_order"
	ResultUnknownPayment = "unknown_payment"
	ResultIgnoredStatus  = "ignored_status"
)

// Ack reports how an event was absorbed.
type Ack struct {
	Result      string              `json:"result"`
	Payment     *payments.Payment   `json:"payment,omitempty"`
	Transaction *ledger.Transaction `json:"transaction,omitempty"`
}

var (
	ErrBadSignature   = errors.New("webhook signature verification failed")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Ingestor verifies, deduplicates and applies processor events.
type Ingestor struct {
	payments payments.Service
	secret   []byte
}

// NewIngestor builds an ingestor with the shared webhook signing secret.
func NewIngestor(svc payments.Service, secret string) *Ingestor {
	return &Ingestor{payments: svc, secret: []byte(secret)}
}

// Handle verifies the signature, then applies the event. Signature failure
// is the only rejection; duplicates, out-of-order events and unknown payment
// references are acknowledged without mutation.
func (i *Ingestor) Handle(ctx context.Context, body []byte, signature string) (Ack, error) {
	if err := i.verify(body, signature); err != nil {
		obs.CountWebhookEvent("bad_signature")
		return Ack{}, err
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		obs.CountWebhookEvent("malformed")
		return Ack{}, ErrMalformedEvent
	}
	if strings.TrimSpace(ev.EventID) == "" || strings.TrimSpace(ev.ProcessorPaymentID) == "" {
		obs.CountWebhookEvent("malformed")
		return Ack{}, ErrMalformedEvent
	}

	status, ok := parseStatus(ev.Status)
	if !ok {
		// Unknown statuses are acked so the processor stops retrying; they
		// carry no transition we understand.
		obs.Event("webhook.ignored_status", map[string]any{
			"event_id": ev.EventID,
			"status":   ev.Status,
		})
		obs.CountWebhookEvent(ResultIgnoredStatus)
		return Ack{Result: ResultIgnoredStatus}, nil
	}

	res, err := i.payments.ApplyEvent(ctx, payments.ProcessorEvent{
		EventID:       ev.EventID,
		IntentID:      ev.ProcessorPaymentID,
		Status:        status,
		SourceID:      ev.SourceID,
		FailureReason: ev.FailureReason,
		Metadata:      ev.Metadata,
	})
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrNotFound):
		// Discrepancy candidate: the processor knows a payment we do not.
		// Ack to stop retries; reconciliation will surface it if it matters.
		obs.Event("webhook.unknown_payment", map[string]any{
			"event_id":             ev.EventID,
			"processor_payment_id": ev.ProcessorPaymentID,
		})
		obs.CountWebhookEvent(ResultUnknownPayment)
		return Ack{Result: ResultUnknownPayment}, nil
	case errors.Is(err, payments.ErrInvalidTransition):
		// Usually a duplicate or out-of-order delivery. Logged, never silent.
		obs.Event("webhook.out_of_order", map[string]any{
			"event_id":             ev.EventID,
			"processor_payment_id": ev.ProcessorPaymentID,
			"status":               ev.Status,
		})
		obs.CountWebhookEvent(ResultOutOfOrder)
		return Ack{Result: ResultOutOfOrder}, nil
	default:
		obs.CountWebhookEvent("error")
		return Ack{}, err
	}

	result := ResultApplied
	switch {
	case res.Duplicate:
		result = ResultDuplicate
	case res.Ignored:
		result = ResultOutOfOrder
	}
	obs.CountWebhookEvent(result)

	if result == ResultApplied {
		fields := map[string]any{
			"event_id":  ev.EventID,
			"order_ref": res.Payment.OrderRef,
			"status":    string(res.Payment.Status),
		}
		if res.Transaction != nil {
			fields["transaction_id"] = res.Transaction.ID
			fields["seller_amount"] = res.Transaction.SellerAmount
		}
		_ = audit.LogEvent(ctx, "webhook.event.apply", fields)
	}

	ack := Ack{Result: result, Payment: &res.Payment}
	if res.Transaction != nil {
		ack.Transaction = res.Transaction
	}
	return ack, nil
}

func parseStatus(raw string) (payments.EventStatus, bool) {
	switch payments.EventStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case payments.EventSucceeded:
		return payments.EventSucceeded, true
	case payments.EventFailed:
		return payments.EventFailed, true
	case payments.EventProcessing:
		return payments.EventProcessing, true
	default:
		return "", false
	}
}
