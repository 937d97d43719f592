// The worker runs the scheduled jobs: settlement of matured funds, nightly
// reconciliation against the processor and the payout outbox relay. It shares
// the Postgres store with the API process; each job is independently safe to
// re-run, so multiple workers only waste effort, never double-move money.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"palengke.dev/internal/config"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
	"palengke.dev/internal/payout"
	"palengke.dev/internal/processor"
	"palengke.dev/internal/recon"
	"palengke.dev/internal/settle"
	"palengke.dev/internal/store/pg"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("PALENGKE_PG_DSN is required for the worker")
	}

	store, err := pg.Open(cfg.PostgresDSN, ledger.Rate{BPS: cfg.CommissionBPS})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	proc := processor.NewHTTPClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey, cfg.ProcessorTimeout)
	publisher := payout.NewKafkaPublisher(cfg.KafkaBrokers(), cfg.PayoutTopic)
	defer publisher.Close()

	settler := settle.NewRunner(store, cfg.SettleHold, cfg.SettleInterval)
	reconciler := recon.NewRunner(store, proc, store, cfg.ReconInterval, cfg.ReconLag)
	relay := payout.NewRelay(store, publisher, cfg.OutboxPollEvery, cfg.OutboxPollLimit, cfg.OutboxPollBudget)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("starting palengke-worker %s", version)

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context){
		"settle": settler.Start,
		"recon":  reconciler.Start,
		"payout": relay.Start,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			obs.Event("worker.job_start", map[string]any{"job": name})
			run(ctx)
		}(name, run)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	cancel()
	wg.Wait()
	log.Println("stopped")
}
