package httpapi

import (
	"errors"
	"io"
	"net/http"

	"palengke.dev/internal/webhook"
)

// handleProcessorWebhook receives asynchronous processor notifications. The
// signature header is the only authentication on this path; bearer tokens
// never apply here.
func (a *API) handleProcessorWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	ack, err := a.ingestor.Handle(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrBadSignature):
			writeError(w, r, http.StatusUnauthorized, err.Error())
		case errors.Is(err, webhook.ErrMalformedEvent):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			// The processor retries on 5xx; internal faults must not ack.
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
