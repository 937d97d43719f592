package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
	"palengke.dev/internal/processor"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service errors onto HTTP status codes. Anything
// unrecognized is a 500 without detail leakage.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrInvalidRate),
		errors.Is(err, ledger.ErrMissingReference),
		errors.Is(err, payments.ErrMissingReference),
		errors.Is(err, payments.ErrUnknownMethod):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrOrderAlreadyPaid),
		errors.Is(err, payments.ErrInvalidTransition),
		errors.Is(err, payments.ErrNotCashOnDelivery),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, payments.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case processor.IsUnavailable(err):
		writeError(w, r, http.StatusServiceUnavailable, "payment processor unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// parseWindow reads optional from/to query parameters (RFC3339). The default
// window ends now and spans def backwards.
func parseWindow(r *http.Request, def time.Duration) (ledger.Window, error) {
	now := time.Now().UTC()
	w := ledger.Window{From: now.Add(-def), To: now}

	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Window{}, errors.New("to must be an RFC3339 timestamp")
		}
		w.To = t.UTC()
		w.From = w.To.Add(-def)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Window{}, errors.New("from must be an RFC3339 timestamp")
		}
		w.From = t.UTC()
	}
	if !w.From.Before(w.To) {
		return ledger.Window{}, errors.New("from must precede to")
	}
	return w, nil
}
