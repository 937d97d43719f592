package payout

import (
	"context"
	"encoding/json"
	"time"

	"palengke.dev/internal/audit"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
)

// Message is the payout wire schema published to Kafka.
type Message struct {
	PayoutID  string    `json:"payout_id"`
	SellerRef string    `json:"seller_ref"`
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Relay drains the payout outbox into the publisher. Rows are marked sent
// only after a successful publish, so a crash between publish and mark can
// re-deliver; consumers dedupe on payout_id.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batch     int
	budget    time.Duration
}

// NewRelay builds a relay. budget bounds each publish call; zero means the
// publish inherits the caller's deadline unchanged.
func NewRelay(outbox Outbox, publisher Publisher, interval time.Duration, batch int, budget time.Duration) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: outbox, publisher: publisher, interval: interval, batch: batch, budget: budget}
}

// Start blocks, draining the outbox once per tick until ctx ends.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				obs.Event("payout.relay_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RunOnce publishes every pending payout in the current batch. A publish
// failure stops the pass; unmarked rows stay pending for the next tick.
func (r *Relay) RunOnce(ctx context.Context) error {
	pending, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return err
	}
	for _, req := range pending {
		if err := r.publish(ctx, req); err != nil {
			obs.CountPayoutPublish("failed")
			return err
		}
		if err := r.outbox.MarkSent(ctx, req.ID); err != nil {
			return err
		}
		obs.CountPayoutPublish("ok")
		_ = audit.LogEvent(ctx, "payout.published", map[string]any{
			"payout_id":  req.ID,
			"seller_ref": req.SellerRef,
			"amount":     req.Amount,
		})
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, req ledger.PayoutRequest) error {
	payload, err := json.Marshal(Message{
		PayoutID:  req.ID,
		SellerRef: req.SellerRef,
		Currency:  req.Currency,
		Amount:    req.Amount,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		return err
	}
	if r.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}
	return r.publisher.Publish(ctx, []byte(req.SellerRef), payload)
}
