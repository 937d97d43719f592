package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"palengke.dev/internal/ids"
	"palengke.dev/internal/ledger"
)

const txColumns = `id, payment_id, order_ref, seller_ref, coalesce(processor_payment_id,''),
	currency, gross_amount, platform_fee, seller_amount, fee_bps, status, metadata, created_at, settled_at`

func (s *Store) RecordSuccess(ctx context.Context, p ledger.RecordParams) (ledger.Transaction, error) {
	if p.PaymentID == "" || p.SellerRef == "" {
		return ledger.Transaction{}, ledger.ErrMissingReference
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.recordSuccessTx(ctx, tx, p)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Transaction{}, err
	}
	return rec, nil
}

// recordSuccessTx inserts the split inside the caller's transaction so the
// webhook apply path commits the payment update and the ledger write as one
// unit. Idempotent per payment id via the unique transactions.payment_id.
func (s *Store) recordSuccessTx(ctx context.Context, tx *sql.Tx, p ledger.RecordParams) (ledger.Transaction, error) {
	existing, err := scanTransaction(tx.QueryRowContext(ctx,
		`select `+txColumns+` from transactions where payment_id=$1`, p.PaymentID))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, err
	}

	fee, sellerAmt, err := ledger.ComputeSplit(p.Amount, p.Rate)
	if err != nil {
		return ledger.Transaction{}, err
	}

	meta, err := marshalMeta(p.Metadata)
	if err != nil {
		return ledger.Transaction{}, err
	}

	id := ids.NewPrefixed("txn")
	var created time.Time
	if err := tx.QueryRowContext(ctx, `
		insert into transactions(id, payment_id, order_ref, seller_ref, processor_payment_id,
			currency, gross_amount, platform_fee, seller_amount, fee_bps, status, metadata)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7,$8,$9,$10,$11,$12)
		returning created_at
	`, id, p.PaymentID, p.OrderRef, p.SellerRef, p.ProcessorPaymentID,
		p.Amount.Currency, p.Amount.Amount, fee, sellerAmt, p.Rate.BPS, ledger.StatusSucceeded, meta).Scan(&created); err != nil {
		return ledger.Transaction{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into seller_balances(seller_ref, pending, available, updated_at)
		values ($1,$2,0,now())
		on conflict (seller_ref) do update
		set pending = seller_balances.pending + excluded.pending, updated_at = now()
	`, p.SellerRef, sellerAmt); err != nil {
		return ledger.Transaction{}, err
	}

	return ledger.Transaction{
		ID:                 id,
		PaymentID:          p.PaymentID,
		OrderRef:           p.OrderRef,
		SellerRef:          p.SellerRef,
		ProcessorPaymentID: p.ProcessorPaymentID,
		Currency:           p.Amount.Currency,
		GrossAmount:        p.Amount.Amount,
		PlatformFee:        fee,
		SellerAmount:       sellerAmt,
		FeeBPS:             p.Rate.BPS,
		Status:             ledger.StatusSucceeded,
		Metadata:           p.Metadata,
		CreatedAt:          created,
	}, nil
}

func (s *Store) Reverse(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanTransaction(tx.QueryRowContext(ctx,
		`select `+txColumns+` from transactions where id=$1 for update`, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	if rec.Status == ledger.StatusReversed {
		return ledger.Transaction{}, ledger.ErrAlreadyReversed
	}

	// Debit hits the balance the credit landed on: pending before settlement,
	// available after.
	column := "pending"
	if rec.Settled() {
		column = "available"
	}
	var current int64
	if err := tx.QueryRowContext(ctx,
		`select `+column+` from seller_balances where seller_ref=$1 for update`,
		rec.SellerRef).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Transaction{}, ledger.ErrNotFound
		}
		return ledger.Transaction{}, err
	}
	if current < rec.SellerAmount {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`update seller_balances set `+column+` = `+column+` - $2, updated_at = now() where seller_ref=$1`,
		rec.SellerRef, rec.SellerAmount); err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`update transactions set status=$2 where id=$1`,
		rec.ID, ledger.StatusReversed); err != nil {
		return ledger.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Transaction{}, err
	}
	rec.Status = ledger.StatusReversed
	return rec, nil
}

func (s *Store) BalanceOf(ctx context.Context, sellerRef string) (ledger.SellerBalance, error) {
	var bal ledger.SellerBalance
	err := s.db.QueryRowContext(ctx, `
		select seller_ref, available, pending, updated_at
		from seller_balances where seller_ref=$1
	`, sellerRef).Scan(&bal.SellerRef, &bal.Available, &bal.Pending, &bal.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.SellerBalance{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.SellerBalance{}, err
	}
	return bal, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	rec, err := scanTransaction(s.db.QueryRowContext(ctx,
		`select `+txColumns+` from transactions where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return rec, err
}

func (s *Store) ListSellerTransactions(ctx context.Context, sellerRef string, w ledger.Window) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+txColumns+` from transactions
		where seller_ref=$1 and created_at >= $2 and created_at < $3
		order by created_at asc
	`, sellerRef, w.From, w.To)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) ListTransactions(ctx context.Context, w ledger.Window) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+txColumns+` from transactions
		where created_at >= $1 and created_at < $2
		order by created_at asc
	`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) CommissionSummary(ctx context.Context, w ledger.Window) (ledger.Summary, error) {
	var sum ledger.Summary
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(gross_amount),0), coalesce(sum(platform_fee),0),
			coalesce(sum(seller_amount),0), count(*)
		from transactions
		where status=$1 and created_at >= $2 and created_at < $3
	`, ledger.StatusSucceeded, w.From, w.To).Scan(&sum.TotalGross, &sum.TotalFee, &sum.TotalSellerAmount, &sum.Count)
	if err != nil {
		return ledger.Summary{}, err
	}
	return sum, nil
}

func (s *Store) Settle(ctx context.Context, maturedBefore time.Time) ([]ledger.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		select seller_ref, currency, sum(seller_amount), count(*)
		from transactions
		where status=$1 and settled_at is null and created_at < $2
		group by seller_ref, currency
	`, ledger.StatusSucceeded, maturedBefore)
	if err != nil {
		return nil, err
	}
	type matured struct {
		seller   string
		currency string
		amount   int64
		count    int
	}
	var batch []matured
	for rows.Next() {
		var m matured
		if err := rows.Scan(&m.seller, &m.currency, &m.amount, &m.count); err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// Stable lock ordering across concurrent settlement runs.
	sort.Slice(batch, func(i, j int) bool { return batch[i].seller < batch[j].seller })

	var results []ledger.Settlement
	for _, m := range batch {
		var pending int64
		if err := tx.QueryRowContext(ctx,
			`select pending from seller_balances where seller_ref=$1 for update`,
			m.seller).Scan(&pending); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if pending < m.amount {
			// A reversal landed after the matured sum was read; leave this
			// seller for the next run.
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			update seller_balances
			set pending = pending - $2, available = available + $2, updated_at = now()
			where seller_ref=$1
		`, m.seller, m.amount); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			update transactions set settled_at = now()
			where seller_ref=$1 and status=$2 and settled_at is null and created_at < $3
		`, m.seller, ledger.StatusSucceeded, maturedBefore); err != nil {
			return nil, err
		}
		if m.amount > 0 {
			if _, err := tx.ExecContext(ctx, `
				insert into payout_outbox(id, seller_ref, currency, amount, status)
				values ($1,$2,$3,$4,'pending')
			`, ids.NewPrefixed("po"), m.seller, m.currency, m.amount); err != nil {
				return nil, err
			}
		}
		results = append(results, ledger.Settlement{SellerRef: m.seller, Amount: m.amount, Transactions: m.count})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var meta []byte
	var settled sql.NullTime
	err := row.Scan(&t.ID, &t.PaymentID, &t.OrderRef, &t.SellerRef, &t.ProcessorPaymentID,
		&t.Currency, &t.GrossAmount, &t.PlatformFee, &t.SellerAmount, &t.FeeBPS,
		&t.Status, &meta, &t.CreatedAt, &settled)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if settled.Valid {
		at := settled.Time
		t.SettledAt = &at
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	defer rows.Close()
	var res []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}
