package payout

import (
	"context"
	"sync"

	"palengke.dev/internal/ledger"
)

// Outbox stages payout requests written transactionally alongside settlement.
// Implementations must return pending rows oldest first.
type Outbox interface {
	Enqueue(ctx context.Context, req ledger.PayoutRequest) error
	Pending(ctx context.Context, limit int) ([]ledger.PayoutRequest, error)
	MarkSent(ctx context.Context, id string) error
}

// InMemoryOutbox backs tests and the smoke binary.
type InMemoryOutbox struct {
	mu      sync.Mutex
	pending []ledger.PayoutRequest
	sent    map[string]bool
}

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{sent: make(map[string]bool)}
}

func (o *InMemoryOutbox) Enqueue(ctx context.Context, req ledger.PayoutRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, req)
	return nil
}

func (o *InMemoryOutbox) Pending(ctx context.Context, limit int) ([]ledger.PayoutRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var res []ledger.PayoutRequest
	for _, req := range o.pending {
		if o.sent[req.ID] {
			continue
		}
		res = append(res, req)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (o *InMemoryOutbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[id] = true
	return nil
}
