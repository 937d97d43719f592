// smoke-settle drives the whole money path in memory: checkout, processor
// webhook, cash-on-delivery confirmation, settlement, payout relay and a
// reconciliation pass. No external services; useful as a living end-to-end
// check of the wiring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
	"palengke.dev/internal/payout"
	"palengke.dev/internal/processor"
	"palengke.dev/internal/recon"
	"palengke.dev/internal/settle"
	"palengke.dev/internal/webhook"
)

const secret = "whsec_smoke"

type stdoutPublisher struct{}

func (stdoutPublisher) Publish(ctx context.Context, key, payload []byte) error {
	fmt.Printf("payout key=%s %s\n", key, payload)
	return nil
}

func (stdoutPublisher) Close() error { return nil }

func main() {
	log.SetFlags(0)
	ctx := context.Background()

	led := ledger.NewInMemory()
	svc := payments.NewInMemory(led, ledger.Rate{BPS: 200})
	proc := processor.NewFake()
	ingestor := webhook.NewIngestor(svc, secret)

	// Processor-backed checkout: create, intent, succeed via signed webhook.
	if _, err := svc.CreatePayment(ctx, payments.CreateParams{
		OrderRef:  "ord_1001",
		PayerRef:  "buyer_7",
		SellerRef: "sel_mango",
		Amount:    ledger.Money{Currency: "PHP", Amount: 125_000},
		Method:    payments.MethodGcash,
	}); err != nil {
		log.Fatalf("create payment: %v", err)
	}
	pay, _ := svc.GetPayment(ctx, "ord_1001")
	intentID, err := proc.CreateIntent(ctx, pay.Amount, pay.Method)
	if err != nil {
		log.Fatalf("create intent: %v", err)
	}
	if _, err := svc.MarkProcessing(ctx, "ord_1001", intentID); err != nil {
		log.Fatalf("mark processing: %v", err)
	}
	proc.Complete(intentID, processor.IntentSucceeded, pay.Amount, time.Now().UTC())

	body, _ := json.Marshal(webhook.Event{
		EventID:            "evt_1001",
		ProcessorPaymentID: intentID,
		Status:             "succeeded",
	})
	ack, err := ingestor.Handle(ctx, body, webhook.Sign([]byte(secret), body))
	if err != nil {
		log.Fatalf("webhook: %v", err)
	}
	fmt.Printf("webhook result=%s fee=%d seller=%d\n",
		ack.Result, ack.Transaction.PlatformFee, ack.Transaction.SellerAmount)

	// Cash on delivery for a second seller.
	if _, err := svc.CreatePayment(ctx, payments.CreateParams{
		OrderRef:  "ord_1002",
		PayerRef:  "buyer_8",
		SellerRef: "sel_isda",
		Amount:    ledger.Money{Currency: "PHP", Amount: 48_000},
		Method:    payments.MethodCOD,
	}); err != nil {
		log.Fatalf("create cod payment: %v", err)
	}
	if _, err := svc.ConfirmDelivery(ctx, "ord_1002"); err != nil {
		log.Fatalf("confirm delivery: %v", err)
	}

	// Settle immediately (zero hold for the smoke run).
	settler := settle.NewRunner(led, 0, time.Hour)
	time.Sleep(10 * time.Millisecond)
	results, err := settler.RunOnce(ctx)
	if err != nil {
		log.Fatalf("settle: %v", err)
	}
	for _, s := range results {
		fmt.Printf("settled seller=%s amount=%d transactions=%d\n", s.SellerRef, s.Amount, s.Transactions)
	}

	// Relay the payout requests the settlement enqueued.
	outbox := payout.NewInMemoryOutbox()
	for _, req := range led.PayoutRequests() {
		if err := outbox.Enqueue(ctx, req); err != nil {
			log.Fatalf("enqueue payout: %v", err)
		}
	}
	relay := payout.NewRelay(outbox, stdoutPublisher{}, time.Hour, 100, 0)
	if err := relay.RunOnce(ctx); err != nil {
		log.Fatalf("payout relay: %v", err)
	}

	// Reconcile: seed one phantom processor row so the report is not clean.
	proc.Seed(processor.Transaction{
		ProcessorPaymentID: "pi_phantom",
		Currency:           "PHP",
		Amount:             9_999,
		Status:             "succeeded",
		Timestamp:          time.Now().UTC(),
	})
	reconciler := recon.NewRunner(led, proc, recon.NewInMemoryStore(), time.Hour, time.Hour)
	now := time.Now().UTC()
	report, err := reconciler.Run(ctx, ledger.Window{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	if err != nil {
		log.Fatalf("recon: %v", err)
	}
	for _, m := range report.Mismatches {
		fmt.Printf("mismatch kind=%s processor_ref=%s delta=%d\n", m.Kind, m.ProcessorRef, m.AmountDelta)
	}

	for _, seller := range []string{"sel_mango", "sel_isda"} {
		bal, err := led.BalanceOf(ctx, seller)
		if err != nil {
			log.Fatalf("balance %s: %v", seller, err)
		}
		fmt.Printf("balance seller=%s available=%d pending=%d\n", seller, bal.Available, bal.Pending)
	}
	fmt.Println("smoke-settle ok")
}
