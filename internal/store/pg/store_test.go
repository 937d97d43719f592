package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, ledger.Rate{BPS: 200}), mock
}

func transactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "payment_id", "order_ref", "seller_ref", "processor_payment_id",
		"currency", "gross_amount", "platform_fee", "seller_amount", "fee_bps",
		"status", "metadata", "created_at", "settled_at",
	})
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_ref", "payer_ref", "seller_ref", "currency", "amount", "method", "status",
		"processor_intent_id", "processor_source_id", "attempt_count",
		"last_attempt_at", "failure_reason", "created_at", "updated_at",
	})
}

func TestBalanceOf(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select seller_ref, available, pending, updated_at").
		WithArgs("sel_1").
		WillReturnRows(sqlmock.NewRows([]string{"seller_ref", "available", "pending", "updated_at"}).
			AddRow("sel_1", int64(4900), int64(9800), now))

	bal, err := s.BalanceOf(context.Background(), "sel_1")
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Available != 4900 || bal.Pending != 9800 {
		t.Fatalf("unexpected balance %+v", bal)
	}

	mock.ExpectQuery("select seller_ref, available, pending, updated_at").
		WithArgs("sel_missing").
		WillReturnRows(sqlmock.NewRows([]string{"seller_ref", "available", "pending", "updated_at"}))

	if _, err := s.BalanceOf(context.Background(), "sel_missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSuccessReplayReturnsExisting(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("from transactions where payment_id=").
		WithArgs("pay_1").
		WillReturnRows(transactionRows().
			AddRow("txn_1", "pay_1", "ord_1", "sel_1", "pi_1", "PHP",
				int64(10000), int64(200), int64(9800), int64(200), "succeeded", []byte(`{}`), now, nil))
	mock.ExpectCommit()

	tx, err := s.RecordSuccess(context.Background(), ledger.RecordParams{
		PaymentID: "pay_1",
		SellerRef: "sel_1",
		Amount:    ledger.Money{Currency: "PHP", Amount: 10000},
		Rate:      ledger.Rate{BPS: 200},
	})
	if err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if tx.ID != "txn_1" || tx.SellerAmount != 9800 {
		t.Fatalf("expected existing transaction back, got %+v", tx)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSuccessInsertsSplitAndCreditsPending(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("from transactions where payment_id=").
		WithArgs("pay_1").
		WillReturnRows(transactionRows())
	mock.ExpectQuery("insert into transactions").
		WithArgs(sqlmock.AnyArg(), "pay_1", "ord_1", "sel_1", "pi_1", "PHP",
			int64(10000), int64(200), int64(9800), int64(200), "succeeded", []byte(`{}`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec("insert into seller_balances").
		WithArgs("sel_1", int64(9800)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.RecordSuccess(context.Background(), ledger.RecordParams{
		PaymentID:          "pay_1",
		OrderRef:           "ord_1",
		SellerRef:          "sel_1",
		ProcessorPaymentID: "pi_1",
		Amount:             ledger.Money{Currency: "PHP", Amount: 10000},
		Rate:               ledger.Rate{BPS: 200},
	})
	if err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if tx.PlatformFee != 200 || tx.SellerAmount != 9800 {
		t.Fatalf("unexpected split %+v", tx)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReverseInsufficientFunds(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("from transactions where id=").
		WithArgs("txn_1").
		WillReturnRows(transactionRows().
			AddRow("txn_1", "pay_1", "ord_1", "sel_1", "pi_1", "PHP",
				int64(10000), int64(200), int64(9800), int64(200), "succeeded", []byte(`{}`), now, nil))
	mock.ExpectQuery("select pending from seller_balances").
		WithArgs("sel_1").
		WillReturnRows(sqlmock.NewRows([]string{"pending"}).AddRow(int64(5000)))
	mock.ExpectRollback()

	if _, err := s.Reverse(context.Background(), "txn_1"); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReverseSettledDebitsAvailable(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("from transactions where id=").
		WithArgs("txn_1").
		WillReturnRows(transactionRows().
			AddRow("txn_1", "pay_1", "ord_1", "sel_1", "pi_1", "PHP",
				int64(10000), int64(200), int64(9800), int64(200), "succeeded", []byte(`{}`), now, now))
	mock.ExpectQuery("select available from seller_balances").
		WithArgs("sel_1").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(int64(9800)))
	mock.ExpectExec("update seller_balances set available").
		WithArgs("sel_1", int64(9800)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update transactions set status=").
		WithArgs("txn_1", "reversed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.Reverse(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if tx.Status != ledger.StatusReversed {
		t.Fatalf("expected reversed status, got %s", tx.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyEventDuplicateIsAcked(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select order_ref from webhook_events").
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"order_ref"}).AddRow("ord_1"))
	mock.ExpectQuery("from payments where order_ref=").
		WithArgs("ord_1").
		WillReturnRows(paymentRows().
			AddRow("pay_1", "ord_1", "buyer_1", "sel_1", "PHP", int64(10000), "gcash", "paid",
				"pi_1", "src_1", 0, nil, "", now, now))
	mock.ExpectQuery("from transactions where payment_id=").
		WithArgs("pay_1").
		WillReturnRows(transactionRows().
			AddRow("txn_1", "pay_1", "ord_1", "sel_1", "pi_1", "PHP",
				int64(10000), int64(200), int64(9800), int64(200), "succeeded", []byte(`{}`), now, nil))
	mock.ExpectCommit()

	res, err := s.ApplyEvent(context.Background(), payments.ProcessorEvent{
		EventID:  "evt_1",
		IntentID: "pi_1",
		Status:   payments.EventSucceeded,
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !res.Duplicate || res.Transaction == nil || res.Transaction.ID != "txn_1" {
		t.Fatalf("expected duplicate ack with existing transaction, got %+v", res)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPendingAndMarkSent(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from payout_outbox").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seller_ref", "currency", "amount", "created_at"}).
			AddRow("po_1", "sel_1", "PHP", int64(14700), now))

	pending, err := s.Pending(context.Background(), 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "po_1" {
		t.Fatalf("unexpected pending rows %+v", pending)
	}

	mock.ExpectExec("update payout_outbox set status='sent'").
		WithArgs("po_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkSent(context.Background(), "po_1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
