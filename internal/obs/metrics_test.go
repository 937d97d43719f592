package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/payments/ord-1023":         "/v1/payments/:order",
		"/v1/payments/ord-1023/intent":  "/v1/payments/:order/intent",
		"/v1/sellers/sel_abc/balance":   "/v1/sellers/:id/balance",
		"/v1/transactions/txn_1/reverse": "/v1/transactions/:id/reverse",
		"/v1/reports/commission":         "/v1/reports/commission",
		"/v1/reports/discrepancies?from=2026-01-01": "/v1/reports/discrepancies",
		"/v1/webhooks/processor": "/v1/webhooks/processor",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
