package ledger

import "time"

// Money is represented in minor units (centavos). No floats anywhere in the
// settlement path; all arithmetic is integer.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }

// Rate is the platform commission in basis points (200 = 2%). It is captured
// from a configuration snapshot and passed explicitly into the calculator so
// a later rate change never rewrites history.
type Rate struct {
	BPS int64 `json:"bps"`
}

// TransactionStatus tracks the ledger entry lifecycle.
type TransactionStatus string

const (
	StatusSucceeded TransactionStatus = "succeeded"
	StatusPending   TransactionStatus = "pending"
	StatusReversed  TransactionStatus = "reversed"
)

// Transaction is the immutable split record written once per paid Payment.
// The only permitted mutation afterwards is the reversal mark.
type Transaction struct {
	ID                 string            `json:"id"`
	PaymentID          string            `json:"payment_id"`
	OrderRef           string            `json:"order_ref"`
	SellerRef          string            `json:"seller_ref"`
	ProcessorPaymentID string            `json:"processor_payment_id,omitempty"`
	Currency           string            `json:"currency"`
	GrossAmount        int64             `json:"gross_amount"`
	PlatformFee        int64             `json:"platform_fee"`
	SellerAmount       int64             `json:"seller_amount"`
	FeeBPS             int64             `json:"fee_bps"`
	Status             TransactionStatus `json:"status"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	SettledAt          *time.Time        `json:"settled_at,omitempty"`
}

// Settled reports whether the seller portion has matured to available.
func (t Transaction) Settled() bool { return t.SettledAt != nil }

// SellerBalance is the hot per-seller row. Both figures are non-negative at
// all times.
type SellerBalance struct {
	SellerRef string    `json:"seller_ref"`
	Available int64     `json:"available"`
	Pending   int64     `json:"pending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window bounds a reporting or reconciliation query: [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Summary aggregates commission figures over a window.
type Summary struct {
	TotalGross        int64 `json:"total_gross"`
	TotalFee          int64 `json:"total_fee"`
	TotalSellerAmount int64 `json:"total_seller_amount"`
	Count             int   `json:"count"`
}

// RecordParams carries everything RecordSuccess needs; the rate snapshot
// travels with the call.
type RecordParams struct {
	PaymentID          string
	OrderRef           string
	SellerRef          string
	ProcessorPaymentID string
	Amount             Money
	Rate               Rate
	Metadata           map[string]string
}

// Settlement summarizes one seller's maturation within a settlement run.
type Settlement struct {
	SellerRef    string `json:"seller_ref"`
	Amount       int64  `json:"amount"`
	Transactions int    `json:"transactions"`
}

// PayoutRequest signals the external payout collaborator that matured funds
// are ready. Enqueued in the same commit as the balance move; execution of
// the payout itself is out of scope.
type PayoutRequest struct {
	ID        string    `json:"id"`
	SellerRef string    `json:"seller_ref"`
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
