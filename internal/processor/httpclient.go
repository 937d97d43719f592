package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/payments"
)

const (
	maxAttempts    = 3
	initialBackoff = 250 * time.Millisecond
)

// HTTPClient talks to a processor gateway over JSON/HTTP. Every call retries
// transient failures with exponential backoff inside the caller's context.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a client with a bounded per-request timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type listTransactionsResponse struct {
	Items []Transaction `json:"items"`
}

func (c *HTTPClient) CreateIntent(ctx context.Context, amount ledger.Money, method payments.Method) (string, error) {
	if !amount.IsPositive() {
		return "", ledger.ErrInvalidAmount
	}
	var resp intentResponse
	err := c.do(ctx, http.MethodPost, "/v1/intents", createIntentRequest{
		Amount:   amount.Amount,
		Currency: amount.Currency,
		Method:   string(method),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: empty intent id", ErrUnavailable)
	}
	return resp.ID, nil
}

func (c *HTTPClient) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	var resp intentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/intents/"+url.PathEscape(intentID), nil, &resp); err != nil {
		return "", err
	}
	return IntentStatus(resp.Status), nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, w ledger.Window) ([]Transaction, error) {
	q := url.Values{}
	q.Set("from", w.From.UTC().Format(time.RFC3339))
	q.Set("to", w.To.UTC().Format(time.RFC3339))
	var resp listTransactionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transactions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// do runs one JSON round trip with retry-with-backoff on transient failure.
// 4xx responses are permanent and returned without retry.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			continue
		}

		func() {
			defer resp.Body.Close()
			switch {
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
			case resp.StatusCode >= 400:
				lastErr = fmt.Errorf("processor rejected %s %s: status %d", method, path, resp.StatusCode)
			default:
				if out != nil {
					lastErr = json.NewDecoder(resp.Body).Decode(out)
				} else {
					lastErr = nil
				}
			}
		}()

		if lastErr == nil {
			return nil
		}
		if !IsUnavailable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// IsUnavailable reports whether err is a transient processor failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
