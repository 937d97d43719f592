// Package httpapi is the HTTP surface: payment intake, webhook ingestion and
// the admin reporting endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"palengke.dev/api/spec"
	"palengke.dev/internal/audit"
	"palengke.dev/internal/ledger"
	"palengke.dev/internal/obs"
	"palengke.dev/internal/payments"
	"palengke.dev/internal/processor"
	"palengke.dev/internal/recon"
	"palengke.dev/internal/webhook"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the API to its collaborators. Processor may be nil when the
// deployment is webhook-only; intent creation then returns 503. Currency, when
// set, is the only currency accepted at payment creation.
type Deps struct {
	Ready     ReadyProbe
	Version   string
	Currency  string
	Payments  payments.Service
	Ledger    ledger.Service
	Reports   recon.Store
	Processor processor.Client
	Ingestor  *webhook.Ingestor
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	currency   string

	payments  payments.Service
	ledger    ledger.Service
	reports   recon.Store
	processor processor.Client
	ingestor  *webhook.Ingestor
}

func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: d.Ready,
		version:    d.Version,
		currency:   strings.ToUpper(strings.TrimSpace(d.Currency)),
		payments:   d.Payments,
		ledger:     d.Ledger,
		reports:    d.Reports,
		processor:  d.Processor,
		ingestor:   d.Ingestor,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// payments
	a.mux.HandleFunc("/v1/payments", a.handlePaymentsCollection)
	a.mux.HandleFunc("/v1/payments/", a.handlePaymentResource)

	// processor webhook
	a.mux.HandleFunc("/v1/webhooks/processor", a.handleProcessorWebhook)

	// sellers and reporting
	a.mux.HandleFunc("/v1/sellers/", a.handleSellerResource)
	a.mux.HandleFunc("/v1/reports/commission", a.handleCommissionReport)
	a.mux.HandleFunc("/v1/reports/discrepancies", a.handleDiscrepancyReports)

	// admin reversal
	a.mux.HandleFunc("/v1/transactions/", a.handleTransactionResource)

	// token issuance for the admin surface
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler: request ids, auth, metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(RequestID(a.withAuth(a.mux)))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "palengke-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "palengke-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

func (a *API) audit(ctx context.Context, event, entity, id string, meta map[string]string) {
	fields := map[string]any{
		"entity":    entity,
		"entity_id": id,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
