package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func record(t *testing.T, s *InMemory, paymentID, seller string, amount int64) Transaction {
	t.Helper()
	tx, err := s.RecordSuccess(context.Background(), RecordParams{
		PaymentID:          paymentID,
		OrderRef:           "ord-" + paymentID,
		SellerRef:          seller,
		ProcessorPaymentID: "pi_" + paymentID,
		Amount:             Money{Currency: "PHP", Amount: amount},
		Rate:               Rate{BPS: 200},
	})
	if err != nil {
		t.Fatalf("RecordSuccess(%s): %v", paymentID, err)
	}
	return tx
}

func TestRecordSuccessCreditsPending(t *testing.T) {
	s := NewInMemory()
	tx := record(t, s, "pay-1", "seller-1", 10_000)

	if tx.PlatformFee != 200 || tx.SellerAmount != 9_800 {
		t.Fatalf("unexpected split: fee=%d seller=%d", tx.PlatformFee, tx.SellerAmount)
	}
	if tx.GrossAmount != tx.PlatformFee+tx.SellerAmount {
		t.Fatalf("split invariant broken: %d != %d + %d", tx.GrossAmount, tx.PlatformFee, tx.SellerAmount)
	}

	bal, err := s.BalanceOf(context.Background(), "seller-1")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Pending != 9_800 || bal.Available != 0 {
		t.Fatalf("unexpected balance: pending=%d available=%d", bal.Pending, bal.Available)
	}
}

func TestRecordSuccessRejectsMissingReferences(t *testing.T) {
	s := NewInMemory()
	params := RecordParams{
		SellerRef: "seller-1",
		Amount:    Money{Currency: "PHP", Amount: 10_000},
		Rate:      Rate{BPS: 200},
	}
	if _, err := s.RecordSuccess(context.Background(), params); err != ErrMissingReference {
		t.Fatalf("empty payment id: got %v, want ErrMissingReference", err)
	}
	params.PaymentID = "pay-1"
	params.SellerRef = ""
	if _, err := s.RecordSuccess(context.Background(), params); err != ErrMissingReference {
		t.Fatalf("empty seller ref: got %v, want ErrMissingReference", err)
	}
}

func TestRecordSuccessIsIdempotentPerPayment(t *testing.T) {
	s := NewInMemory()
	tx1 := record(t, s, "pay-1", "seller-1", 10_000)
	tx2 := record(t, s, "pay-1", "seller-1", 10_000)

	if tx1.ID != tx2.ID {
		t.Fatalf("idempotency violated: %s != %s", tx1.ID, tx2.ID)
	}
	bal, _ := s.BalanceOf(context.Background(), "seller-1")
	if bal.Pending != 9_800 {
		t.Fatalf("pending credited twice: %d", bal.Pending)
	}
}

func TestReverseDebitsPendingBeforeSettlement(t *testing.T) {
	s := NewInMemory()
	tx := record(t, s, "pay-1", "seller-1", 10_000)

	reversed, err := s.Reverse(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if reversed.Status != StatusReversed {
		t.Fatalf("status = %s", reversed.Status)
	}
	bal, _ := s.BalanceOf(context.Background(), "seller-1")
	if bal.Pending != 0 || bal.Available != 0 {
		t.Fatalf("unexpected balance after reverse: %+v", bal)
	}

	if _, err := s.Reverse(context.Background(), tx.ID); err != ErrAlreadyReversed {
		t.Fatalf("double reverse: expected ErrAlreadyReversed, got %v", err)
	}
}

func TestReverseDebitsAvailableAfterSettlement(t *testing.T) {
	s := NewInMemory()
	tx := record(t, s, "pay-1", "seller-1", 10_000)

	if _, err := s.Settle(context.Background(), time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if _, err := s.Reverse(context.Background(), tx.ID); err != nil {
		t.Fatalf("Reverse after settle: %v", err)
	}
	bal, _ := s.BalanceOf(context.Background(), "seller-1")
	if bal.Available != 0 || bal.Pending != 0 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}

func TestReverseNeverDrivesBalanceNegative(t *testing.T) {
	s := NewInMemory()
	tx := record(t, s, "pay-1", "seller-1", 10_000)

	// Mature and simulate the payout collaborator draining available.
	if _, err := s.Settle(context.Background(), time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.balances["seller-1"].Available = 0
	s.mu.Unlock()

	if _, err := s.Reverse(context.Background(), tx.ID); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	got, _ := s.GetTransaction(context.Background(), tx.ID)
	if got.Status != StatusSucceeded {
		t.Fatalf("failed reversal must not change status, got %s", got.Status)
	}
}

func TestSettleHonorsHoldWindow(t *testing.T) {
	s := NewInMemory()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	old := record(t, s, "pay-old", "seller-1", 10_000)
	s.now = func() time.Time { return base.Add(6 * 24 * time.Hour) }
	young := record(t, s, "pay-young", "seller-1", 5_000)

	// Hold of 7 days evaluated 8 days after the first credit.
	asOf := base.Add(8 * 24 * time.Hour)
	s.now = func() time.Time { return asOf }
	results, err := s.Settle(context.Background(), asOf.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(results) != 1 || results[0].Amount != 9_800 || results[0].Transactions != 1 {
		t.Fatalf("unexpected settlement results: %+v", results)
	}

	bal, _ := s.BalanceOf(context.Background(), "seller-1")
	if bal.Available != 9_800 || bal.Pending != 4_900 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	gotOld, _ := s.GetTransaction(context.Background(), old.ID)
	if !gotOld.Settled() {
		t.Fatal("matured transaction not marked settled")
	}
	gotYoung, _ := s.GetTransaction(context.Background(), young.ID)
	if gotYoung.Settled() {
		t.Fatal("young transaction must stay unsettled")
	}

	// Re-run with nothing newly matured: no-op, no duplicate payout.
	again, err := s.Settle(context.Background(), asOf.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("second Settle: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-run settled something: %+v", again)
	}
	if payouts := s.PayoutRequests(); len(payouts) != 1 {
		t.Fatalf("expected exactly one payout request, got %d", len(payouts))
	}
}

func TestSettleSkipsReversedTransactions(t *testing.T) {
	s := NewInMemory()
	tx := record(t, s, "pay-1", "seller-1", 10_000)
	record(t, s, "pay-2", "seller-1", 5_000)

	if _, err := s.Reverse(context.Background(), tx.ID); err != nil {
		t.Fatal(err)
	}
	results, err := s.Settle(context.Background(), time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Amount != 4_900 {
		t.Fatalf("unexpected results: %+v", results)
	}
	bal, _ := s.BalanceOf(context.Background(), "seller-1")
	if bal.Available != 4_900 || bal.Pending != 0 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}

func TestCommissionSummaryWindow(t *testing.T) {
	s := NewInMemory()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	record(t, s, "pay-1", "seller-1", 10_000)
	record(t, s, "pay-2", "seller-2", 25)
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	record(t, s, "pay-3", "seller-1", 7_000)

	sum, err := s.CommissionSummary(context.Background(), Window{From: base, To: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 2 {
		t.Fatalf("count = %d", sum.Count)
	}
	if sum.TotalGross != 10_025 || sum.TotalFee != 201 || sum.TotalSellerAmount != 9_824 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.TotalGross != sum.TotalFee+sum.TotalSellerAmount {
		t.Fatal("summary does not conserve gross")
	}
}

func TestConcurrentRecordsConserveMoney(t *testing.T) {
	s := NewInMemory()
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.RecordSuccess(context.Background(), RecordParams{
				PaymentID: fmt.Sprintf("pay-%d", i),
				OrderRef:  fmt.Sprintf("ord-%d", i),
				SellerRef: "seller-1",
				Amount:    Money{Currency: "PHP", Amount: 10_000},
				Rate:      Rate{BPS: 200},
			})
		}(i)
	}
	wg.Wait()

	bal, err := s.BalanceOf(context.Background(), "seller-1")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Pending != n*9_800 {
		t.Fatalf("pending = %d, want %d", bal.Pending, n*9_800)
	}
}
