package webhook

import (
	"context"
	"encoding/json"
	"testing"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

const testSecret = "whsec_test"

func newIngestor(t *testing.T) (*Ingestor, *payments.InMemory, *ledger.InMemory) {
	t.Helper()
	led := ledger.NewInMemory()
	svc := payments.NewInMemory(led, ledger.Rate{BPS: 200})
	return NewIngestor(svc, testSecret), svc, led
}

func signedBody(t *testing.T, ev Event) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return body, Sign([]byte(testSecret), body)
}

func setupProcessing(t *testing.T, svc *payments.InMemory, order, intent string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.CreatePayment(ctx, payments.CreateParams{
		OrderRef:  order,
		PayerRef:  "buyer-1",
		SellerRef: "seller-1",
		Amount:    ledger.Money{Currency: "PHP", Amount: 10_000},
		Method:    payments.MethodGcash,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkProcessing(ctx, order, intent); err != nil {
		t.Fatal(err)
	}
}

func TestHandleAppliesPaidEvent(t *testing.T) {
	ing, svc, led := newIngestor(t)
	setupProcessing(t, svc, "ord-1", "pi_1")

	body, sig := signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_1", Status: "succeeded"})
	ack, err := ing.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if ack.Result != ResultApplied || ack.Transaction == nil {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	bal, _ := led.BalanceOf(context.Background(), "seller-1")
	if bal.Pending != 9_800 {
		t.Fatalf("pending = %d", bal.Pending)
	}
}

func TestHandleIsIdempotentPerEventID(t *testing.T) {
	ing, svc, led := newIngestor(t)
	setupProcessing(t, svc, "ord-1", "pi_1")

	body, sig := signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_1", Status: "succeeded"})
	if _, err := ing.Handle(context.Background(), body, sig); err != nil {
		t.Fatal(err)
	}
	ack, err := ing.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("replay must ack: %v", err)
	}
	if ack.Result != ResultDuplicate {
		t.Fatalf("replay result = %s", ack.Result)
	}

	bal, _ := led.BalanceOf(context.Background(), "seller-1")
	if bal.Pending != 9_800 {
		t.Fatalf("pending after replay = %d, want 9800", bal.Pending)
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	ing, svc, _ := newIngestor(t)
	setupProcessing(t, svc, "ord-1", "pi_1")

	body, _ := signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_1", Status: "succeeded"})
	if _, err := ing.Handle(context.Background(), body, Sign([]byte("wrong-secret"), body)); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// Nothing may change on a rejected event.
	pay, err := svc.GetPayment(context.Background(), "ord-1")
	if err != nil {
		t.Fatal(err)
	}
	if pay.Status != payments.StatusProcessing {
		t.Fatalf("payment mutated on bad signature: %s", pay.Status)
	}
}

func TestHandleAcksUnknownPayment(t *testing.T) {
	ing, _, _ := newIngestor(t)
	body, sig := signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_ghost", Status: "succeeded"})
	ack, err := ing.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("unknown payment must ack: %v", err)
	}
	if ack.Result != ResultUnknownPayment {
		t.Fatalf("result = %s", ack.Result)
	}
}

func TestHandleAcksOutOfOrderEvent(t *testing.T) {
	ing, svc, _ := newIngestor(t)
	setupProcessing(t, svc, "ord-1", "pi_1")

	// paid arrives first...
	body, sig := signedBody(t, Event{EventID: "evt_2", ProcessorPaymentID: "pi_1", Status: "succeeded"})
	if _, err := ing.Handle(context.Background(), body, sig); err != nil {
		t.Fatal(err)
	}
	// ...then a stale processing notification.
	body, sig = signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_1", Status: "processing"})
	ack, err := ing.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("stale event must ack: %v", err)
	}
	if ack.Result != ResultOutOfOrder {
		t.Fatalf("result = %s", ack.Result)
	}

	pay, _ := svc.GetPayment(context.Background(), "ord-1")
	if pay.Status != payments.StatusPaid {
		t.Fatalf("paid state regressed to %s", pay.Status)
	}
}

func TestHandleRejectsMalformedEvent(t *testing.T) {
	ing, _, _ := newIngestor(t)
	body := []byte(`{"event_id": ""}`)
	if _, err := ing.Handle(context.Background(), body, Sign([]byte(testSecret), body)); err != ErrMalformedEvent {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestHandleAcksUnknownStatus(t *testing.T) {
	ing, svc, _ := newIngestor(t)
	setupProcessing(t, svc, "ord-1", "pi_1")

	body, sig := signedBody(t, Event{EventID: "evt_1", ProcessorPaymentID: "pi_1", Status: "chargeback.created"})
	ack, err := ing.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ack.Result != ResultIgnoredStatus {
		t.Fatalf("result = %s", ack.Result)
	}
}
