package ledger

// ComputeSplit divides a gross amount into platform fee and seller amount.
// The fee is rounded half-up and the seller gets the exact remainder, so
// fee + seller == gross holds for every input and the platform absorbs the
// rounding residue.
//
// Pure and deterministic; safe for concurrent use.
func ComputeSplit(gross Money, rate Rate) (platformFee, sellerAmount int64, err error) {
	if gross.Amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if gross.Currency == "" {
		return 0, 0, ErrInvalidCurrency
	}
	if rate.BPS < 0 || rate.BPS > 10_000 {
		return 0, 0, ErrInvalidRate
	}
	// Half-up in integer arithmetic: fee = floor((gross*bps + 5000) / 10000).
	// Amounts are minor units; gross*bps stays far below int64 range for any
	// realistic order total.
	platformFee = (gross.Amount*rate.BPS + 5_000) / 10_000
	sellerAmount = gross.Amount - platformFee
	return platformFee, sellerAmount, nil
}
