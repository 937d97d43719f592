package payments

// CanTransition encodes the payment state machine:
//
//	pending → processing → {paid | failed}        (processor path)
//	pending → paid                                 (cash-on-delivery confirm)
//	pending → failed                               (cash-on-delivery cancel)
//	failed  → processing                           (retry via new intent)
//
// Anything else signals a duplicate or out-of-order event and is rejected.
func CanTransition(from, to Status, method Method) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusProcessing:
			return !method.CashOnDelivery()
		case StatusPaid, StatusFailed:
			return method.CashOnDelivery()
		default:
			return false
		}
	case StatusProcessing:
		return to == StatusPaid || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing && !method.CashOnDelivery()
	case StatusPaid:
		return false
	default:
		return false
	}
}

// RetryableForIntent reports whether a new processor intent may be requested.
func RetryableForIntent(s Status) bool {
	return s == StatusPending || s == StatusFailed
}
