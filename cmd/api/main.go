package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palengke.dev/internal/config"
	"palengke.dev/internal/httpapi"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
	"palengke.dev/internal/payments"
	"palengke.dev/internal/processor"
	"palengke.dev/internal/recon"
	"palengke.dev/internal/store/pg"
	"palengke.dev/internal/webhook"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	rate := ledger.Rate{BPS: cfg.CommissionBPS}
	deps := httpapi.Deps{
		Version:  version,
		Currency: cfg.Currency,
		Processor: processor.NewHTTPClient(
			cfg.ProcessorBaseURL, cfg.ProcessorAPIKey, cfg.ProcessorTimeout),
	}

	var store *pg.Store
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN, rate)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		deps.Ready = httpapi.ReadyProbe{DB: store.DB()}
		deps.Payments = store
		deps.Ledger = store
		deps.Reports = store
	} else {
		// No DSN: in-memory services for local development and smoke runs.
		led := ledger.NewInMemory()
		deps.Payments = payments.NewInMemory(led, rate)
		deps.Ledger = led
		deps.Reports = recon.NewInMemoryStore()
	}
	deps.Ingestor = webhook.NewIngestor(deps.Payments, cfg.WebhookSecret)

	api := httpapi.New(deps)
	handler := httpapi.Logging(
		httpapi.SecurityHeaders(
			httpapi.CORS(
				httpapi.MaxBodyBytes(
					httpapi.RateLimit(api.Handler(), 50, 25),
					1<<20))))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting palengke-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("stopped")
}
