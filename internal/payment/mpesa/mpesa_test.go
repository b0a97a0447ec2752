package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/expertmarket/settlement/internal/payment"
)

func newDarajaServer(t *testing.T, responses map[string]map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "daraja-token",
			})
			return
		}
		if r.Header.Get("Authorization") != "Bearer daraja-token" {
			t.Fatalf("unexpected authorization header: %s", r.Header.Get("Authorization"))
		}
		resp, ok := responses[r.URL.Path]
		if !ok {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testConfig(baseURL string) Config {
	return Config{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		ShortCode:      "174379",
		Passkey:        "passkey",
		APIBaseURL:     baseURL,
		CallbackURL:    "https://example.com/mpesa/callback",
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("nil config should be rejected")
	}
	cfg := testConfig(defaultAPIBaseURL)
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Passkey = ""
	if err := ValidateConfig(&cfg); err == nil {
		t.Fatalf("missing passkey should be rejected")
	}
}

func TestChargeAcceptedIsPending(t *testing.T) {
	server := newDarajaServer(t, map[string]map[string]interface{}{
		"/mpesa/stkpush/v1/processrequest": {
			"CheckoutRequestID":   "ws_CO_123",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
		},
	})
	defer server.Close()

	p := New(testConfig(server.URL))
	result, err := p.Charge(context.Background(), payment.ChargeInput{
		AmountCents: 150000,
		Currency:    "KES",
		MethodRef:   "254712345678",
		Metadata:    map[string]string{"order_no": "EM20260901-0002"},
	})
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if result.Status != payment.StatusPending {
		t.Fatalf("accepted stk push should be pending, got %s", result.Status)
	}
	if result.ProviderRef != "ws_CO_123" {
		t.Fatalf("unexpected provider ref: %s", result.ProviderRef)
	}
}

func TestQueryUserCancelled(t *testing.T) {
	server := newDarajaServer(t, map[string]map[string]interface{}{
		"/mpesa/stkpushquery/v1/query": {
			"ResultCode": "1032",
			"ResultDesc": "Request cancelled by user",
		},
	})
	defer server.Close()

	p := New(testConfig(server.URL))
	result, err := p.Query(context.Background(), "ws_CO_123")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Status != payment.StatusFailed {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.FailureReason != "request cancelled by user" {
		t.Fatalf("unexpected failure reason: %s", result.FailureReason)
	}
}

func TestQuerySucceeded(t *testing.T) {
	server := newDarajaServer(t, map[string]map[string]interface{}{
		"/mpesa/stkpushquery/v1/query": {
			"ResultCode": "0",
			"ResultDesc": "The service request is processed successfully.",
		},
	})
	defer server.Close()

	p := New(testConfig(server.URL))
	result, err := p.Query(context.Background(), "ws_CO_123")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Status != payment.StatusSucceeded {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

func TestStkPassword(t *testing.T) {
	got := stkPassword("174379", "passkey", "20260901120000")
	want := base64.StdEncoding.EncodeToString([]byte("174379passkey20260901120000"))
	if got != want {
		t.Fatalf("stk password mismatch: %s != %s", got, want)
	}
}

func TestWholeAmount(t *testing.T) {
	if got := wholeAmount(150000); got != 1500 {
		t.Fatalf("whole amount want 1500 got %d", got)
	}
	// 不足一先令向上取整，避免少收
	if got := wholeAmount(150001); got != 1501 {
		t.Fatalf("whole amount want 1501 got %d", got)
	}
}
