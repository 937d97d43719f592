package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"palengke.dev/internal/ids"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

const payColumns = `id, order_ref, payer_ref, seller_ref, currency, amount, method, status,
	coalesce(processor_intent_id,''), coalesce(processor_source_id,''), attempt_count,
	last_attempt_at, coalesce(failure_reason,''), created_at, updated_at`

func (s *Store) CreatePayment(ctx context.Context, p payments.CreateParams) (payments.Payment, error) {
	if strings.TrimSpace(p.OrderRef) == "" || strings.TrimSpace(p.SellerRef) == "" {
		return payments.Payment{}, payments.ErrMissingReference
	}
	if !p.Amount.IsPositive() {
		return payments.Payment{}, ledger.ErrInvalidAmount
	}
	if p.Amount.Currency == "" {
		return payments.Payment{}, ledger.ErrInvalidCurrency
	}
	if _, err := payments.ParseMethod(string(p.Method)); err != nil {
		return payments.Payment{}, err
	}

	id := ids.NewPrefixed("pay")
	// One row per order, enforced by unique(order_ref); a lost race falls
	// through to the existing row.
	res, err := s.db.ExecContext(ctx, `
		insert into payments(id, order_ref, payer_ref, seller_ref, currency, amount, method, status)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (order_ref) do nothing
	`, id, p.OrderRef, p.PayerRef, p.SellerRef, p.Amount.Currency, p.Amount.Amount, p.Method, payments.StatusPending)
	if err != nil {
		return payments.Payment{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		existing, err := s.GetPayment(ctx, p.OrderRef)
		if err != nil {
			return payments.Payment{}, err
		}
		if existing.Status == payments.StatusPaid {
			return payments.Payment{}, payments.ErrOrderAlreadyPaid
		}
		return existing, nil
	}
	return s.GetPayment(ctx, p.OrderRef)
}

func (s *Store) GetPayment(ctx context.Context, orderRef string) (payments.Payment, error) {
	pay, err := scanPayment(s.db.QueryRowContext(ctx,
		`select `+payColumns+` from payments where order_ref=$1`, orderRef))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, payments.ErrNotFound
	}
	return pay, err
}

func (s *Store) MarkProcessing(ctx context.Context, orderRef, intentID string) (payments.Payment, error) {
	if strings.TrimSpace(intentID) == "" {
		return payments.Payment{}, payments.ErrInvalidTransition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	pay, err := lockPayment(ctx, tx, orderRef)
	if err != nil {
		return payments.Payment{}, err
	}
	if !payments.CanTransition(pay.Status, payments.StatusProcessing, pay.Method) {
		return payments.Payment{}, payments.ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		update payments
		set status=$2, processor_intent_id=$3, failure_reason=null,
			last_attempt_at=now(), updated_at=now()
		where order_ref=$1
	`, orderRef, payments.StatusProcessing, intentID); err != nil {
		return payments.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return payments.Payment{}, err
	}

	now := time.Now().UTC()
	pay.Status = payments.StatusProcessing
	pay.ProcessorIntentID = intentID
	pay.FailureReason = ""
	pay.LastAttemptAt = &now
	pay.UpdatedAt = now
	return pay, nil
}

func (s *Store) ApplyEvent(ctx context.Context, ev payments.ProcessorEvent) (payments.ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payments.ApplyResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Event-level dedupe before touching the payment row.
	var seenOrder string
	err = tx.QueryRowContext(ctx,
		`select order_ref from webhook_events where event_id=$1`, ev.EventID).Scan(&seenOrder)
	if err == nil {
		pay, err := lockPayment(ctx, tx, seenOrder)
		if err != nil {
			return payments.ApplyResult{}, err
		}
		res := payments.ApplyResult{Payment: pay, Duplicate: true}
		if rec, err := s.transactionForPayment(ctx, tx, pay.ID); err == nil {
			res.Transaction = &rec
		}
		return res, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return payments.ApplyResult{}, err
	}

	pay, err := lockPaymentByIntent(ctx, tx, ev.IntentID)
	if err != nil {
		return payments.ApplyResult{}, err
	}

	var res payments.ApplyResult
	switch ev.Status {
	case payments.EventSucceeded:
		res, err = s.applyPaidTx(ctx, tx, pay, ev)
	case payments.EventFailed:
		res, err = s.applyFailedTx(ctx, tx, pay, ev)
	case payments.EventProcessing:
		res = payments.ApplyResult{Payment: pay, Ignored: pay.Status != payments.StatusProcessing}
	default:
		return payments.ApplyResult{}, payments.ErrInvalidTransition
	}
	if err != nil {
		return payments.ApplyResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into webhook_events(event_id, order_ref) values ($1,$2)
		on conflict (event_id) do nothing
	`, ev.EventID, pay.OrderRef); err != nil {
		return payments.ApplyResult{}, err
	}
	return res, tx.Commit()
}

func (s *Store) ConfirmDelivery(ctx context.Context, orderRef string) (payments.ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payments.ApplyResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	pay, err := lockPayment(ctx, tx, orderRef)
	if err != nil {
		return payments.ApplyResult{}, err
	}
	if !pay.CashOnDelivery() {
		return payments.ApplyResult{}, payments.ErrNotCashOnDelivery
	}
	if pay.Status == payments.StatusPaid {
		res := payments.ApplyResult{Payment: pay, Ignored: true}
		if rec, err := s.transactionForPayment(ctx, tx, pay.ID); err == nil {
			res.Transaction = &rec
		}
		return res, tx.Commit()
	}
	if !payments.CanTransition(pay.Status, payments.StatusPaid, pay.Method) {
		return payments.ApplyResult{}, payments.ErrInvalidTransition
	}

	res, err := s.markPaidTx(ctx, tx, pay, "", map[string]string{"method": string(payments.MethodCOD)})
	if err != nil {
		return payments.ApplyResult{}, err
	}
	return res, tx.Commit()
}

func (s *Store) CancelDelivery(ctx context.Context, orderRef, reason string) (payments.Payment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	pay, err := lockPayment(ctx, tx, orderRef)
	if err != nil {
		return payments.Payment{}, err
	}
	if !pay.CashOnDelivery() {
		return payments.Payment{}, payments.ErrNotCashOnDelivery
	}
	if !payments.CanTransition(pay.Status, payments.StatusFailed, pay.Method) {
		return payments.Payment{}, payments.ErrInvalidTransition
	}

	if err := failPaymentTx(ctx, tx, pay.OrderRef, reason); err != nil {
		return payments.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return payments.Payment{}, err
	}

	now := time.Now().UTC()
	pay.Status = payments.StatusFailed
	pay.FailureReason = reason
	pay.AttemptCount++
	pay.LastAttemptAt = &now
	pay.UpdatedAt = now
	return pay, nil
}

func (s *Store) applyPaidTx(ctx context.Context, tx *sql.Tx, pay payments.Payment, ev payments.ProcessorEvent) (payments.ApplyResult, error) {
	if pay.Status == payments.StatusPaid {
		res := payments.ApplyResult{Payment: pay, Ignored: true}
		if rec, err := s.transactionForPayment(ctx, tx, pay.ID); err == nil {
			res.Transaction = &rec
		}
		return res, nil
	}
	if !payments.CanTransition(pay.Status, payments.StatusPaid, pay.Method) {
		return payments.ApplyResult{}, payments.ErrInvalidTransition
	}
	if ev.SourceID != "" {
		if _, err := tx.ExecContext(ctx,
			`update payments set processor_source_id=$2 where order_ref=$1`,
			pay.OrderRef, ev.SourceID); err != nil {
			return payments.ApplyResult{}, err
		}
		pay.ProcessorSourceID = ev.SourceID
	}
	return s.markPaidTx(ctx, tx, pay, ev.IntentID, ev.Metadata)
}

func (s *Store) applyFailedTx(ctx context.Context, tx *sql.Tx, pay payments.Payment, ev payments.ProcessorEvent) (payments.ApplyResult, error) {
	if pay.Status == payments.StatusFailed {
		return payments.ApplyResult{Payment: pay, Ignored: true}, nil
	}
	if !payments.CanTransition(pay.Status, payments.StatusFailed, pay.Method) {
		return payments.ApplyResult{}, payments.ErrInvalidTransition
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "processor reported failure"
	}
	if err := failPaymentTx(ctx, tx, pay.OrderRef, reason); err != nil {
		return payments.ApplyResult{}, err
	}
	now := time.Now().UTC()
	pay.Status = payments.StatusFailed
	pay.FailureReason = reason
	pay.AttemptCount++
	pay.LastAttemptAt = &now
	pay.UpdatedAt = now
	return payments.ApplyResult{Payment: pay}, nil
}

// markPaidTx flips the payment to paid and records the ledger split in the
// same transaction. Either both land or neither does.
func (s *Store) markPaidTx(ctx context.Context, tx *sql.Tx, pay payments.Payment, processorPaymentID string, meta map[string]string) (payments.ApplyResult, error) {
	rec, err := s.recordSuccessTx(ctx, tx, ledger.RecordParams{
		PaymentID:          pay.ID,
		OrderRef:           pay.OrderRef,
		SellerRef:          pay.SellerRef,
		ProcessorPaymentID: processorPaymentID,
		Amount:             pay.Amount,
		Rate:               s.rate,
		Metadata:           meta,
	})
	if err != nil {
		return payments.ApplyResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update payments set status=$2, failure_reason=null, updated_at=now()
		where order_ref=$1
	`, pay.OrderRef, payments.StatusPaid); err != nil {
		return payments.ApplyResult{}, err
	}
	pay.Status = payments.StatusPaid
	pay.FailureReason = ""
	pay.UpdatedAt = time.Now().UTC()
	return payments.ApplyResult{Payment: pay, Transaction: &rec}, nil
}

func failPaymentTx(ctx context.Context, tx *sql.Tx, orderRef, reason string) error {
	_, err := tx.ExecContext(ctx, `
		update payments
		set status=$2, failure_reason=$3, attempt_count=attempt_count+1,
			last_attempt_at=now(), updated_at=now()
		where order_ref=$1
	`, orderRef, payments.StatusFailed, reason)
	return err
}

func (s *Store) transactionForPayment(ctx context.Context, tx *sql.Tx, paymentID string) (ledger.Transaction, error) {
	return scanTransaction(tx.QueryRowContext(ctx,
		`select `+txColumns+` from transactions where payment_id=$1`, paymentID))
}

func lockPayment(ctx context.Context, tx *sql.Tx, orderRef string) (payments.Payment, error) {
	pay, err := scanPayment(tx.QueryRowContext(ctx,
		`select `+payColumns+` from payments where order_ref=$1 for update`, orderRef))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, payments.ErrNotFound
	}
	return pay, err
}

func lockPaymentByIntent(ctx context.Context, tx *sql.Tx, intentID string) (payments.Payment, error) {
	pay, err := scanPayment(tx.QueryRowContext(ctx,
		`select `+payColumns+` from payments where processor_intent_id=$1 for update`, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, payments.ErrNotFound
	}
	return pay, err
}

func scanPayment(row rowScanner) (payments.Payment, error) {
	var p payments.Payment
	var lastAttempt sql.NullTime
	err := row.Scan(&p.ID, &p.OrderRef, &p.PayerRef, &p.SellerRef, &p.Amount.Currency, &p.Amount.Amount,
		&p.Method, &p.Status, &p.ProcessorIntentID, &p.ProcessorSourceID, &p.AttemptCount,
		&lastAttempt, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return payments.Payment{}, err
	}
	if lastAttempt.Valid {
		at := lastAttempt.Time
		p.LastAttemptAt = &at
	}
	return p, nil
}
