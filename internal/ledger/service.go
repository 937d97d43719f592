package ledger

import (
	"context"
	"sync"
	"time"

	"palengke.dev/internal/ids"
)

// Service defines the ledger operations. RecordSuccess and Reverse are the
// only writers of seller balances; both are single atomic units.
type Service interface {
	// RecordSuccess computes the commission split, inserts the Transaction
	// and credits the seller's pending balance. Idempotent per PaymentID: a
	// replay returns the existing Transaction unchanged.
	RecordSuccess(ctx context.Context, p RecordParams) (Transaction, error)
	// Reverse marks a Transaction reversed and debits the seller balance the
	// original credit landed on (pending before settlement, available after).
	// A debit that would go negative fails with ErrInsufficientFunds and is
	// left for manual handling.
	Reverse(ctx context.Context, transactionID string) (Transaction, error)
	// BalanceOf returns the committed balance pair for a seller.
	BalanceOf(ctx context.Context, sellerRef string) (SellerBalance, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListSellerTransactions(ctx context.Context, sellerRef string, w Window) ([]Transaction, error)
	// ListTransactions returns every transaction created inside the window,
	// newest last. Used by reconciliation and admin reporting.
	ListTransactions(ctx context.Context, w Window) ([]Transaction, error)
	CommissionSummary(ctx context.Context, w Window) (Summary, error)
	// Settle matures pending funds for every seller whose unsettled
	// transactions are older than maturedBefore, moving them to available and
	// enqueueing a payout request in the same unit. Re-running with nothing
	// newly matured is a no-op.
	Settle(ctx context.Context, maturedBefore time.Time) ([]Settlement, error)
}

// InMemory implements Service with in-process concurrency safety. It backs
// unit tests and the smoke binary; production runs on the pg store.
type InMemory struct {
	mu       sync.RWMutex
	txs      map[string]*Transaction
	order    []string // insertion order of transaction ids
	balances map[string]*SellerBalance
	byPay    map[string]string // payment id -> transaction id
	payouts  []PayoutRequest

	now func() time.Time
}

// NewInMemory creates a fresh ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		txs:      make(map[string]*Transaction),
		balances: make(map[string]*SellerBalance),
		byPay:    make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) RecordSuccess(ctx context.Context, p RecordParams) (Transaction, error) {
	if p.PaymentID == "" || p.SellerRef == "" {
		return Transaction{}, ErrMissingReference
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotency: the payment id is the key.
	if id, ok := s.byPay[p.PaymentID]; ok {
		return *s.txs[id], nil
	}

	fee, sellerAmt, err := ComputeSplit(p.Amount, p.Rate)
	if err != nil {
		return Transaction{}, err
	}

	now := s.now()
	tx := &Transaction{
		ID:                 ids.NewPrefixed("txn"),
		PaymentID:          p.PaymentID,
		OrderRef:           p.OrderRef,
		SellerRef:          p.SellerRef,
		ProcessorPaymentID: p.ProcessorPaymentID,
		Currency:           p.Amount.Currency,
		GrossAmount:        p.Amount.Amount,
		PlatformFee:        fee,
		SellerAmount:       sellerAmt,
		FeeBPS:             p.Rate.BPS,
		Status:             StatusSucceeded,
		Metadata:           copyMeta(p.Metadata),
		CreatedAt:          now,
	}

	bal := s.balance(p.SellerRef)
	bal.Pending += sellerAmt
	bal.UpdatedAt = now

	s.txs[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	s.byPay[p.PaymentID] = tx.ID
	return *tx, nil
}

func (s *InMemory) Reverse(ctx context.Context, transactionID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status == StatusReversed {
		return Transaction{}, ErrAlreadyReversed
	}

	bal := s.balance(tx.SellerRef)
	if tx.Settled() {
		if bal.Available < tx.SellerAmount {
			return Transaction{}, ErrInsufficientFunds
		}
		bal.Available -= tx.SellerAmount
	} else {
		if bal.Pending < tx.SellerAmount {
			return Transaction{}, ErrInsufficientFunds
		}
		bal.Pending -= tx.SellerAmount
	}
	bal.UpdatedAt = s.now()
	tx.Status = StatusReversed
	return *tx, nil
}

func (s *InMemory) BalanceOf(ctx context.Context, sellerRef string) (SellerBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.balances[sellerRef]
	if !ok {
		return SellerBalance{}, ErrNotFound
	}
	return *bal, nil
}

func (s *InMemory) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return *tx, nil
}

func (s *InMemory) ListSellerTransactions(ctx context.Context, sellerRef string, w Window) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transaction
	for _, id := range s.order {
		tx := s.txs[id]
		if tx.SellerRef != sellerRef || !w.Contains(tx.CreatedAt) {
			continue
		}
		res = append(res, *tx)
	}
	return res, nil
}

func (s *InMemory) ListTransactions(ctx context.Context, w Window) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transaction
	for _, id := range s.order {
		tx := s.txs[id]
		if !w.Contains(tx.CreatedAt) {
			continue
		}
		res = append(res, *tx)
	}
	return res, nil
}

func (s *InMemory) CommissionSummary(ctx context.Context, w Window) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum Summary
	for _, id := range s.order {
		tx := s.txs[id]
		if tx.Status != StatusSucceeded || !w.Contains(tx.CreatedAt) {
			continue
		}
		sum.TotalGross += tx.GrossAmount
		sum.TotalFee += tx.PlatformFee
		sum.TotalSellerAmount += tx.SellerAmount
		sum.Count++
	}
	return sum, nil
}

func (s *InMemory) Settle(ctx context.Context, maturedBefore time.Time) ([]Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matured := make(map[string][]*Transaction)
	for _, id := range s.order {
		tx := s.txs[id]
		if tx.Status != StatusSucceeded || tx.Settled() {
			continue
		}
		if !tx.CreatedAt.Before(maturedBefore) {
			continue
		}
		matured[tx.SellerRef] = append(matured[tx.SellerRef], tx)
	}

	now := s.now()
	var results []Settlement
	for seller, txs := range matured {
		var amount int64
		for _, tx := range txs {
			amount += tx.SellerAmount
		}
		bal := s.balance(seller)
		if bal.Pending < amount {
			// A concurrent reversal shrank pending below the matured sum;
			// skip this seller and let the next run pick it up.
			continue
		}
		bal.Pending -= amount
		bal.Available += amount
		bal.UpdatedAt = now
		for _, tx := range txs {
			settled := now
			tx.SettledAt = &settled
		}
		if amount > 0 {
			s.payouts = append(s.payouts, PayoutRequest{
				ID:        ids.NewPrefixed("po"),
				SellerRef: seller,
				Currency:  txs[0].Currency,
				Amount:    amount,
				CreatedAt: now,
			})
		}
		results = append(results, Settlement{SellerRef: seller, Amount: amount, Transactions: len(txs)})
	}
	return results, nil
}

// PayoutRequests returns the enqueued payout signals. Test/smoke helper; the
// pg store persists these in the payout outbox instead.
func (s *InMemory) PayoutRequests() []PayoutRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PayoutRequest, len(s.payouts))
	copy(out, s.payouts)
	return out
}

func (s *InMemory) balance(sellerRef string) *SellerBalance {
	bal, ok := s.balances[sellerRef]
	if !ok {
		bal = &SellerBalance{SellerRef: sellerRef}
		s.balances[sellerRef] = bal
	}
	return bal
}

func copyMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
