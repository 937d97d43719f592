package httpapi

import (
	"net/http"
	"strings"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/recon"
)

const (
	defaultReportWindow      = 24 * time.Hour
	defaultTransactionWindow = 30 * 24 * time.Hour
)

type sellerTransactionsResponse struct {
	SellerRef string               `json:"seller_ref"`
	Items     []ledger.Transaction `json:"items"`
	Window    ledger.Window        `json:"window"`
}

type commissionReportResponse struct {
	Summary ledger.Summary `json:"summary"`
	Window  ledger.Window  `json:"window"`
	AsOf    time.Time      `json:"as_of"`
}

type discrepancyReportsResponse struct {
	Reports []recon.Report `json:"reports"`
	Window  ledger.Window  `json:"window"`
}

func (a *API) handleSellerResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sellers/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	if id, ok := strings.CutSuffix(path, "/balance"); ok {
		if id = strings.TrimSuffix(id, "/"); id == "" {
			writeError(w, r, http.StatusNotFound, "seller not found")
			return
		}
		a.getSellerBalance(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/transactions"); ok {
		if id = strings.TrimSuffix(id, "/"); id == "" {
			writeError(w, r, http.StatusNotFound, "seller not found")
			return
		}
		a.listSellerTransactions(w, r, id)
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) getSellerBalance(w http.ResponseWriter, r *http.Request, sellerRef string) {
	bal, err := a.ledger.BalanceOf(r.Context(), sellerRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (a *API) listSellerTransactions(w http.ResponseWriter, r *http.Request, sellerRef string) {
	window, err := parseWindow(r, defaultTransactionWindow)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.ledger.ListSellerTransactions(r.Context(), sellerRef, window)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sellerTransactionsResponse{
		SellerRef: sellerRef,
		Items:     items,
		Window:    window,
	})
}

func (a *API) handleCommissionReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requireAdmin(r.Context()); err != nil {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	window, err := parseWindow(r, defaultReportWindow)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := a.ledger.CommissionSummary(r.Context(), window)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commissionReportResponse{
		Summary: sum,
		Window:  window,
		AsOf:    time.Now().UTC(),
	})
}

func (a *API) handleDiscrepancyReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requireAdmin(r.Context()); err != nil {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	window, err := parseWindow(r, 7*24*time.Hour)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := a.reports.ListReports(r.Context(), window)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, discrepancyReportsResponse{
		Reports: reports,
		Window:  window,
	})
}
