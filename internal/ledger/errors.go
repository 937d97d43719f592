package ledger

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidRate       = errors.New("invalid commission rate")
	ErrMissingReference  = errors.New("payment id and seller ref are required")
	ErrAlreadyReversed   = errors.New("transaction already reversed")
)
