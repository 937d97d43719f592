package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

type createPaymentRequest struct {
	OrderRef  string `json:"order_ref"`
	PayerRef  string `json:"payer_ref"`
	SellerRef string `json:"seller_ref"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
}

type deliveryRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type intentResponse struct {
	Payment  payments.Payment `json:"payment"`
	IntentID string           `json:"intent_id"`
}

func (a *API) handlePaymentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createPayment(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handlePaymentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if order, ok := strings.CutSuffix(path, "/intent"); ok {
		if order = strings.TrimSuffix(order, "/"); order == "" {
			writeError(w, r, http.StatusNotFound, "payment not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.createIntent(w, r, order)
		return
	}
	if order, ok := strings.CutSuffix(path, "/delivery"); ok {
		if order = strings.TrimSuffix(order, "/"); order == "" {
			writeError(w, r, http.StatusNotFound, "payment not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.confirmDelivery(w, r, order)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getPayment(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.OrderRef) == "" || strings.TrimSpace(req.SellerRef) == "" {
		writeError(w, r, http.StatusBadRequest, "order_ref and seller_ref are required")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		writeError(w, r, http.StatusBadRequest, "currency is required")
		return
	}
	if a.currency != "" && currency != a.currency {
		writeError(w, r, http.StatusBadRequest, "unsupported currency: only "+a.currency+" is accepted")
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, http.StatusBadRequest, "amount must be > 0")
		return
	}
	method, err := payments.ParseMethod(req.Method)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pay, err := a.payments.CreatePayment(r.Context(), payments.CreateParams{
		OrderRef:  strings.TrimSpace(req.OrderRef),
		PayerRef:  strings.TrimSpace(req.PayerRef),
		SellerRef: strings.TrimSpace(req.SellerRef),
		Amount:    ledger.Money{Currency: currency, Amount: req.Amount},
		Method:    method,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "payment.create", "payment", pay.ID, map[string]string{
		"order_ref":  pay.OrderRef,
		"seller_ref": pay.SellerRef,
		"method":     string(pay.Method),
		"amount":     strconv.FormatInt(pay.Amount.Amount, 10),
	})

	w.Header().Set("Location", "/v1/payments/"+pay.OrderRef)
	writeJSON(w, http.StatusCreated, pay)
}

func (a *API) getPayment(w http.ResponseWriter, r *http.Request, orderRef string) {
	pay, err := a.payments.GetPayment(r.Context(), orderRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pay)
}

// createIntent asks the processor for an intent and moves the payment to
// processing. The processor call happens before our own state change, so an
// unavailable processor leaves the payment untouched and retryable.
func (a *API) createIntent(w http.ResponseWriter, r *http.Request, orderRef string) {
	if a.processor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "payment processor not configured")
		return
	}

	pay, err := a.payments.GetPayment(r.Context(), orderRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if pay.CashOnDelivery() {
		writeError(w, r, http.StatusConflict, "cash-on-delivery payments have no processor intent")
		return
	}
	if !payments.CanTransition(pay.Status, payments.StatusProcessing, pay.Method) {
		writeError(w, r, http.StatusConflict, payments.ErrInvalidTransition.Error())
		return
	}

	intentID, err := a.processor.CreateIntent(r.Context(), pay.Amount, pay.Method)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	pay, err = a.payments.MarkProcessing(r.Context(), orderRef, intentID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "payment.intent.create", "payment", pay.ID, map[string]string{
		"order_ref": pay.OrderRef,
		"intent_id": intentID,
	})
	writeJSON(w, http.StatusCreated, intentResponse{Payment: pay, IntentID: intentID})
}

// confirmDelivery is the cash-on-delivery terminal trigger: the courier
// reports delivered or failed.
func (a *API) confirmDelivery(w http.ResponseWriter, r *http.Request, orderRef string) {
	var req deliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Outcome)) {
	case "delivered":
		res, err := a.payments.ConfirmDelivery(r.Context(), orderRef)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "payment.delivery.confirm", "payment", res.Payment.ID, map[string]string{
			"order_ref": res.Payment.OrderRef,
		})
		writeJSON(w, http.StatusOK, res)
	case "failed":
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "delivery failed"
		}
		pay, err := a.payments.CancelDelivery(r.Context(), orderRef, reason)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "payment.delivery.cancel", "payment", pay.ID, map[string]string{
			"order_ref": pay.OrderRef,
			"reason":    reason,
		})
		writeJSON(w, http.StatusOK, pay)
	default:
		writeError(w, r, http.StatusBadRequest, "outcome must be delivered or failed")
	}
}

func (a *API) handleTransactionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/transactions/")
	id, ok := strings.CutSuffix(path, "/reverse")
	if !ok || strings.TrimSuffix(id, "/") == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id = strings.TrimSuffix(id, "/")
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.requireAdmin(r.Context()); err != nil {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}

	tx, err := a.ledger.Reverse(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "ledger.transaction.reverse", "transaction", tx.ID, map[string]string{
		"seller_ref":    tx.SellerRef,
		"seller_amount": strconv.FormatInt(tx.SellerAmount, 10),
	})
	writeJSON(w, http.StatusOK, tx)
}
