package payments

import (
	"context"
	"strings"
	"sync"
	"time"

	"palengke.dev/internal/ids"
	"palengke.dev/internal/ledger"
)

// Service tracks payment attempts and drives the state machine. Transitions
// into paid record the ledger split in the same atomic unit.
type Service interface {
	// CreatePayment registers a checkout attempt. If a Payment already exists
	// for the order it is returned as-is unless the order is already paid.
	CreatePayment(ctx context.Context, p CreateParams) (Payment, error)
	GetPayment(ctx context.Context, orderRef string) (Payment, error)
	// MarkProcessing attaches a processor intent and moves pending|failed to
	// processing. Only valid for processor-backed methods.
	MarkProcessing(ctx context.Context, orderRef, intentID string) (Payment, error)
	// ApplyEvent applies one processor notification exactly once. Replays of
	// the same event id and out-of-order statuses come back as
	// Duplicate/Ignored results, never as double mutations.
	ApplyEvent(ctx context.Context, ev ProcessorEvent) (ApplyResult, error)
	// ConfirmDelivery is the cash-on-delivery terminal trigger. Idempotent:
	// confirming an already-paid COD order returns the existing result.
	ConfirmDelivery(ctx context.Context, orderRef string) (ApplyResult, error)
	// CancelDelivery fails a pending cash-on-delivery payment.
	CancelDelivery(ctx context.Context, orderRef, reason string) (Payment, error)
}

// InMemory implements Service backed by an in-memory ledger. All mutations
// for a given Payment serialize on one mutex; the pg store uses row locks
// for the same guarantee.
type InMemory struct {
	mu       sync.Mutex
	byOrder  map[string]*Payment
	byIntent map[string]string // intent id -> order ref
	events   map[string]string // processed event id -> order ref

	ledger *ledger.InMemory
	rate   ledger.Rate

	now func() time.Time
}

// NewInMemory wires the payment service to an in-memory ledger with the
// commission rate snapshot taken at construction.
func NewInMemory(led *ledger.InMemory, rate ledger.Rate) *InMemory {
	return &InMemory{
		byOrder:  make(map[string]*Payment),
		byIntent: make(map[string]string),
		events:   make(map[string]string),
		ledger:   led,
		rate:     rate,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) CreatePayment(ctx context.Context, p CreateParams) (Payment, error) {
	if strings.TrimSpace(p.OrderRef) == "" || strings.TrimSpace(p.SellerRef) == "" {
		return Payment{}, ErrMissingReference
	}
	if !p.Amount.IsPositive() {
		return Payment{}, ledger.ErrInvalidAmount
	}
	if p.Amount.Currency == "" {
		return Payment{}, ledger.ErrInvalidCurrency
	}
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return Payment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byOrder[p.OrderRef]; ok {
		if existing.Status == StatusPaid {
			return Payment{}, ErrOrderAlreadyPaid
		}
		// One Payment per order; retries reuse the row.
		return *existing, nil
	}

	now := s.now()
	pay := &Payment{
		ID:        ids.NewPrefixed("pay"),
		OrderRef:  p.OrderRef,
		PayerRef:  p.PayerRef,
		SellerRef: p.SellerRef,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byOrder[p.OrderRef] = pay
	return *pay, nil
}

func (s *InMemory) GetPayment(ctx context.Context, orderRef string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pay, ok := s.byOrder[orderRef]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *pay, nil
}

func (s *InMemory) MarkProcessing(ctx context.Context, orderRef, intentID string) (Payment, error) {
	if strings.TrimSpace(intentID) == "" {
		return Payment{}, ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.byOrder[orderRef]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if !CanTransition(pay.Status, StatusProcessing, pay.Method) {
		return Payment{}, ErrInvalidTransition
	}

	now := s.now()
	if pay.ProcessorIntentID != "" {
		delete(s.byIntent, pay.ProcessorIntentID)
	}
	pay.Status = StatusProcessing
	pay.ProcessorIntentID = intentID
	pay.FailureReason = ""
	pay.LastAttemptAt = &now
	pay.UpdatedAt = now
	s.byIntent[intentID] = orderRef
	return *pay, nil
}

func (s *InMemory) ApplyEvent(ctx context.Context, ev ProcessorEvent) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orderRef, seen := s.events[ev.EventID]; seen {
		pay := s.byOrder[orderRef]
		res := ApplyResult{Payment: *pay, Duplicate: true}
		if tx, err := s.transactionFor(ctx, pay); err == nil {
			res.Transaction = tx
		}
		return res, nil
	}

	orderRef, ok := s.byIntent[ev.IntentID]
	if !ok {
		return ApplyResult{}, ErrNotFound
	}
	pay := s.byOrder[orderRef]

	switch ev.Status {
	case EventSucceeded:
		return s.applyPaid(ctx, pay, ev)
	case EventFailed:
		return s.applyFailed(pay, ev)
	case EventProcessing:
		// Progress notification; nothing to move once processing.
		s.events[ev.EventID] = orderRef
		return ApplyResult{Payment: *pay, Ignored: pay.Status != StatusProcessing}, nil
	default:
		return ApplyResult{}, ErrInvalidTransition
	}
}

func (s *InMemory) ConfirmDelivery(ctx context.Context, orderRef string) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.byOrder[orderRef]
	if !ok {
		return ApplyResult{}, ErrNotFound
	}
	if !pay.CashOnDelivery() {
		return ApplyResult{}, ErrNotCashOnDelivery
	}
	if pay.Status == StatusPaid {
		res := ApplyResult{Payment: *pay, Ignored: true}
		if tx, err := s.transactionFor(ctx, pay); err == nil {
			res.Transaction = tx
		}
		return res, nil
	}
	if !CanTransition(pay.Status, StatusPaid, pay.Method) {
		return ApplyResult{}, ErrInvalidTransition
	}
	return s.markPaid(ctx, pay, "", map[string]string{"method": string(MethodCOD)})
}

func (s *InMemory) CancelDelivery(ctx context.Context, orderRef, reason string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pay, ok := s.byOrder[orderRef]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if !pay.CashOnDelivery() {
		return Payment{}, ErrNotCashOnDelivery
	}
	if !CanTransition(pay.Status, StatusFailed, pay.Method) {
		return Payment{}, ErrInvalidTransition
	}
	s.failLocked(pay, reason)
	return *pay, nil
}

// applyPaid handles a succeeded event, including the idempotent replay where
// the payment is already paid: the existing Transaction comes back, nothing
// is written twice.
func (s *InMemory) applyPaid(ctx context.Context, pay *Payment, ev ProcessorEvent) (ApplyResult, error) {
	if pay.Status == StatusPaid {
		s.events[ev.EventID] = pay.OrderRef
		res := ApplyResult{Payment: *pay, Ignored: true}
		if tx, err := s.transactionFor(ctx, pay); err == nil {
			res.Transaction = tx
		}
		return res, nil
	}
	if !CanTransition(pay.Status, StatusPaid, pay.Method) {
		return ApplyResult{}, ErrInvalidTransition
	}
	if ev.SourceID != "" {
		pay.ProcessorSourceID = ev.SourceID
	}
	res, err := s.markPaid(ctx, pay, ev.IntentID, ev.Metadata)
	if err != nil {
		return ApplyResult{}, err
	}
	s.events[ev.EventID] = pay.OrderRef
	return res, nil
}

func (s *InMemory) applyFailed(pay *Payment, ev ProcessorEvent) (ApplyResult, error) {
	if pay.Status == StatusFailed {
		s.events[ev.EventID] = pay.OrderRef
		return ApplyResult{Payment: *pay, Ignored: true}, nil
	}
	if !CanTransition(pay.Status, StatusFailed, pay.Method) {
		return ApplyResult{}, ErrInvalidTransition
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "processor reported failure"
	}
	s.failLocked(pay, reason)
	s.events[ev.EventID] = pay.OrderRef
	return ApplyResult{Payment: *pay}, nil
}

func (s *InMemory) markPaid(ctx context.Context, pay *Payment, processorPaymentID string, meta map[string]string) (ApplyResult, error) {
	tx, err := s.ledger.RecordSuccess(ctx, ledger.RecordParams{
		PaymentID:          pay.ID,
		OrderRef:           pay.OrderRef,
		SellerRef:          pay.SellerRef,
		ProcessorPaymentID: processorPaymentID,
		Amount:             pay.Amount,
		Rate:               s.rate,
		Metadata:           meta,
	})
	if err != nil {
		return ApplyResult{}, err
	}
	now := s.now()
	pay.Status = StatusPaid
	pay.FailureReason = ""
	pay.UpdatedAt = now
	return ApplyResult{Payment: *pay, Transaction: &tx}, nil
}

func (s *InMemory) failLocked(pay *Payment, reason string) {
	now := s.now()
	pay.Status = StatusFailed
	pay.FailureReason = reason
	pay.AttemptCount++
	pay.LastAttemptAt = &now
	pay.UpdatedAt = now
}

func (s *InMemory) transactionFor(ctx context.Context, pay *Payment) (*ledger.Transaction, error) {
	txs, err := s.ledger.ListSellerTransactions(ctx, pay.SellerRef, ledger.Window{
		From: pay.CreatedAt.Add(-time.Minute),
		To:   s.now().Add(time.Minute),
	})
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if txs[i].PaymentID == pay.ID {
			return &txs[i], nil
		}
	}
	return nil, ledger.ErrNotFound
}
