package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/processor"
)

func testWindow() ledger.Window {
	now := time.Now().UTC()
	return ledger.Window{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func record(t *testing.T, led *ledger.InMemory, paymentID, procRef string, amount int64) ledger.Transaction {
	t.Helper()
	tx, err := led.RecordSuccess(context.Background(), ledger.RecordParams{
		PaymentID:          paymentID,
		OrderRef:           "ord_" + paymentID,
		SellerRef:          "sel_1",
		ProcessorPaymentID: procRef,
		Amount:             ledger.Money{Currency: "PHP", Amount: amount},
		Rate:               ledger.Rate{BPS: 200},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return tx
}

func newTestRunner(led *ledger.InMemory, proc processor.Client) (*Runner, *InMemoryStore) {
	store := NewInMemoryStore()
	return NewRunner(led, proc, store, time.Hour, time.Hour), store
}

func TestRunCleanWhenSidesAgree(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	tx := record(t, led, "pay_1", "pi_1", 10000)
	proc.Seed(processor.Transaction{
		ProcessorPaymentID: "pi_1",
		Currency:           "PHP",
		Amount:             tx.GrossAmount,
		Status:             "succeeded",
		Timestamp:          time.Now().UTC(),
	})

	r, store := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean report, got %+v", report.Mismatches)
	}
	saved, err := store.ListReports(context.Background(), testWindow())
	if err != nil || len(saved) != 1 {
		t.Fatalf("expected one saved report, got %d (err %v)", len(saved), err)
	}
}

func TestRunFlagsMissingLocally(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	proc.Seed(processor.Transaction{
		ProcessorPaymentID: "pi_ghost",
		Currency:           "PHP",
		Amount:             5000,
		Status:             "succeeded",
		Timestamp:          time.Now().UTC(),
	})

	r, _ := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.Kind != KindMissingLocally || m.ProcessorRef != "pi_ghost" || m.AmountDelta != 5000 {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}

func TestRunFlagsMissingRemotely(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	tx := record(t, led, "pay_1", "pi_1", 7500)

	r, _ := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.Kind != KindMissingRemotely || m.LocalRef != tx.ID || m.AmountDelta != -7500 {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}

func TestRunFlagsAmountAndStatusMismatch(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	record(t, led, "pay_1", "pi_1", 10000)
	proc.Seed(processor.Transaction{
		ProcessorPaymentID: "pi_1",
		Currency:           "PHP",
		Amount:             9900,
		Status:             "refunded",
		Timestamp:          time.Now().UTC(),
	})

	r, _ := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Mismatches) != 2 {
		t.Fatalf("expected 2 mismatches, got %+v", report.Mismatches)
	}
	// Sorted by kind: amount_mismatch before status_mismatch.
	if report.Mismatches[0].Kind != KindAmountMismatch || report.Mismatches[0].AmountDelta != -100 {
		t.Fatalf("unexpected amount mismatch %+v", report.Mismatches[0])
	}
	if report.Mismatches[1].Kind != KindStatusMismatch {
		t.Fatalf("unexpected status mismatch %+v", report.Mismatches[1])
	}
}

func TestRunSkipsCashOnDeliveryLocals(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	record(t, led, "pay_cod", "", 4000)

	r, _ := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("cod transactions must not be reconciled, got %+v", report.Mismatches)
	}
}

func TestReversedLocalMatchesRefundedRemote(t *testing.T) {
	led := ledger.NewInMemory()
	proc := processor.NewFake()
	tx := record(t, led, "pay_1", "pi_1", 10000)
	if _, err := led.Reverse(context.Background(), tx.ID); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	proc.Seed(processor.Transaction{
		ProcessorPaymentID: "pi_1",
		Currency:           "PHP",
		Amount:             10000,
		Status:             "refunded",
		Timestamp:          time.Now().UTC(),
	})

	r, _ := newTestRunner(led, proc)
	report, err := r.Run(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("reversed/refunded pair should agree, got %+v", report.Mismatches)
	}
}

type brokenListing struct {
	*processor.Fake
}

func (brokenListing) ListTransactions(context.Context, ledger.Window) ([]processor.Transaction, error) {
	return nil, errors.New("processor listing down")
}

func TestRunAbortsOnFetchFailure(t *testing.T) {
	led := ledger.NewInMemory()
	record(t, led, "pay_1", "pi_1", 10000)

	r, store := newTestRunner(led, brokenListing{processor.NewFake()})
	_, err := r.Run(context.Background(), testWindow())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	saved, _ := store.ListReports(context.Background(), testWindow())
	if len(saved) != 0 {
		t.Fatalf("no report should be written on abort, got %d", len(saved))
	}
}
