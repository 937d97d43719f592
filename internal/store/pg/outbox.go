package pg

import (
	"context"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payout"
)

var _ payout.Outbox = (*Store)(nil)

// Enqueue stages a payout row directly. Settlement normally writes the outbox
// inside its own transaction; this path exists for manual re-queues.
func (s *Store) Enqueue(ctx context.Context, req ledger.PayoutRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into payout_outbox(id, seller_ref, currency, amount, status)
		values ($1,$2,$3,$4,'pending')
		on conflict (id) do nothing
	`, req.ID, req.SellerRef, req.Currency, req.Amount)
	return err
}

func (s *Store) Pending(ctx context.Context, limit int) ([]ledger.PayoutRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, seller_ref, currency, amount, created_at
		from payout_outbox
		where status='pending'
		order by created_at asc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ledger.PayoutRequest
	for rows.Next() {
		var r ledger.PayoutRequest
		if err := rows.Scan(&r.ID, &r.SellerRef, &r.Currency, &r.Amount, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update payout_outbox set status='sent', sent_at=now() where id=$1
	`, id)
	return err
}
