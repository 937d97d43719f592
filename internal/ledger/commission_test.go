package ledger

import "testing"

func TestComputeSplitRoundsHalfUpOnFee(t *testing.T) {
	cases := []struct {
		gross   int64
		bps     int64
		fee     int64
		sellers int64
	}{
		{10_000, 200, 200, 9_800}, // ₱100.00 at 2%
		{1, 200, 0, 1},            // 0.02 centavos rounds down
		{25, 200, 1, 24},          // 0.5 rounds up, platform absorbs it
		{99, 200, 2, 97},          // 1.98 rounds up
		{12_345, 250, 309, 12_036},
		{10_000, 0, 0, 10_000},
		{10_000, 10_000, 10_000, 0},
	}
	for _, c := range cases {
		fee, seller, err := ComputeSplit(Money{Currency: "PHP", Amount: c.gross}, Rate{BPS: c.bps})
		if err != nil {
			t.Fatalf("ComputeSplit(%d, %d): %v", c.gross, c.bps, err)
		}
		if fee != c.fee || seller != c.sellers {
			t.Fatalf("ComputeSplit(%d, %d) = (%d, %d), want (%d, %d)",
				c.gross, c.bps, fee, seller, c.fee, c.sellers)
		}
		if fee+seller != c.gross {
			t.Fatalf("split of %d does not conserve gross: %d + %d", c.gross, fee, seller)
		}
	}
}

func TestComputeSplitConservesGrossExhaustively(t *testing.T) {
	for gross := int64(1); gross <= 5_000; gross++ {
		fee, seller, err := ComputeSplit(Money{Currency: "PHP", Amount: gross}, Rate{BPS: 275})
		if err != nil {
			t.Fatalf("gross %d: %v", gross, err)
		}
		if fee+seller != gross {
			t.Fatalf("gross %d: fee %d + seller %d != gross", gross, fee, seller)
		}
		if fee < 0 || seller < 0 {
			t.Fatalf("gross %d: negative component fee=%d seller=%d", gross, fee, seller)
		}
	}
}

func TestComputeSplitRejectsBadInput(t *testing.T) {
	if _, _, err := ComputeSplit(Money{Currency: "PHP", Amount: 0}, Rate{BPS: 200}); err != ErrInvalidAmount {
		t.Fatalf("zero gross: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := ComputeSplit(Money{Currency: "PHP", Amount: -5}, Rate{BPS: 200}); err != ErrInvalidAmount {
		t.Fatalf("negative gross: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := ComputeSplit(Money{Amount: 100}, Rate{BPS: 200}); err != ErrInvalidCurrency {
		t.Fatalf("missing currency: expected ErrInvalidCurrency, got %v", err)
	}
	if _, _, err := ComputeSplit(Money{Currency: "PHP", Amount: 100}, Rate{BPS: 10_001}); err != ErrInvalidRate {
		t.Fatalf("rate > 100%%: expected ErrInvalidRate, got %v", err)
	}
	if _, _, err := ComputeSplit(Money{Currency: "PHP", Amount: 100}, Rate{BPS: -1}); err != ErrInvalidRate {
		t.Fatalf("negative rate: expected ErrInvalidRate, got %v", err)
	}
}
