package settle

import (
	"context"
	"testing"
	"time"

	"palengke.dev/internal/ledger"
)

func record(t *testing.T, led *ledger.InMemory, paymentID string, amount int64) ledger.Transaction {
	t.Helper()
	tx, err := led.RecordSuccess(context.Background(), ledger.RecordParams{
		PaymentID:          paymentID,
		OrderRef:           "ord_" + paymentID,
		SellerRef:          "sel_1",
		ProcessorPaymentID: "pi_" + paymentID,
		Amount:             ledger.Money{Currency: "PHP", Amount: amount},
		Rate:               ledger.Rate{BPS: 200},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return tx
}

func TestRunOnceSettlesMaturedFunds(t *testing.T) {
	led := ledger.NewInMemory()
	record(t, led, "pay_1", 10000)
	record(t, led, "pay_2", 5000)

	r := NewRunner(led, 0, time.Hour)
	r.now = func() time.Time { return time.Now().UTC().Add(time.Second) }

	results, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one seller settled, got %d", len(results))
	}
	// 2% fee: 10000 -> 9800 and 5000 -> 4900 to the seller.
	if results[0].Amount != 14700 || results[0].Transactions != 2 {
		t.Fatalf("unexpected settlement %+v", results[0])
	}

	bal, err := led.BalanceOf(context.Background(), "sel_1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Pending != 0 || bal.Available != 14700 {
		t.Fatalf("expected funds moved to available, got %+v", bal)
	}
	if len(led.PayoutRequests()) != 1 {
		t.Fatalf("expected one payout request enqueued")
	}
}

func TestRunOnceHonorsHoldWindow(t *testing.T) {
	led := ledger.NewInMemory()
	record(t, led, "pay_1", 10000)

	r := NewRunner(led, 168*time.Hour, time.Hour)
	results, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("funds inside the hold window must not settle, got %+v", results)
	}

	bal, _ := led.BalanceOf(context.Background(), "sel_1")
	if bal.Pending != 9800 || bal.Available != 0 {
		t.Fatalf("expected funds still pending, got %+v", bal)
	}
}

func TestRunOnceIsIdempotentAcrossPasses(t *testing.T) {
	led := ledger.NewInMemory()
	record(t, led, "pay_1", 10000)

	r := NewRunner(led, 0, time.Hour)
	r.now = func() time.Time { return time.Now().UTC().Add(time.Second) }

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	results, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("second pass must find nothing to settle, got %+v", results)
	}
	if got := len(led.PayoutRequests()); got != 1 {
		t.Fatalf("expected exactly one payout request, got %d", got)
	}
}
