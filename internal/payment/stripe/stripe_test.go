package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/expertmarket/settlement/internal/payment"
)

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("nil config should be rejected")
	}
	if err := ValidateConfig(&Config{APIBaseURL: defaultAPIBaseURL}); err == nil {
		t.Fatalf("missing secret key should be rejected")
	}
	if err := ValidateConfig(&Config{SecretKey: "sk_test_123", APIBaseURL: "not a url"}); err == nil {
		t.Fatalf("invalid api base url should be rejected")
	}
	if err := ValidateConfig(&Config{SecretKey: "sk_test_123", APIBaseURL: defaultAPIBaseURL}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewNormalizesConfig(t *testing.T) {
	p := New(Config{SecretKey: " sk_test_123 "})
	if p.cfg.SecretKey != "sk_test_123" {
		t.Fatalf("secret key not trimmed: %q", p.cfg.SecretKey)
	}
	if p.cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("default api base url not applied: %s", p.cfg.APIBaseURL)
	}
	if p.Name() != "stripe" {
		t.Fatalf("unexpected processor name: %s", p.Name())
	}
}

func TestChargeSucceeded(t *testing.T) {
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.PostForm.Get("amount") != "12800" {
			t.Fatalf("unexpected amount: %s", r.PostForm.Get("amount"))
		}
		if r.PostForm.Get("currency") != "usd" {
			t.Fatalf("unexpected currency: %s", r.PostForm.Get("currency"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pi_test_1",
			"status": "succeeded",
		})
	}))
	defer server.Close()

	p := New(Config{SecretKey: "sk_test_123", APIBaseURL: server.URL})
	result, err := p.Charge(context.Background(), payment.ChargeInput{
		IdempotencyKey: "order-1001-charge",
		AmountCents:    12800,
		Currency:       "USD",
		MethodRef:      "pm_card_visa",
	})
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if result.ProviderRef != "pi_test_1" {
		t.Fatalf("unexpected provider ref: %s", result.ProviderRef)
	}
	if result.Status != payment.StatusSucceeded {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if gotIdempotencyKey != "order-1001-charge" {
		t.Fatalf("idempotency key not forwarded: %s", gotIdempotencyKey)
	}
}

func TestChargeRequiresActionReturnsRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pi_test_2",
			"status": "requires_action",
			"next_action": map[string]interface{}{
				"redirect_to_url": map[string]interface{}{
					"url": "https://hooks.stripe.test/3ds",
				},
			},
		})
	}))
	defer server.Close()

	p := New(Config{SecretKey: "sk_test_123", APIBaseURL: server.URL})
	result, err := p.Charge(context.Background(), payment.ChargeInput{
		AmountCents: 5000,
		Currency:    "EUR",
		MethodRef:   "pm_card_3ds",
	})
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if result.Status != payment.StatusRedirectRequired {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.RedirectURL != "https://hooks.stripe.test/3ds" {
		t.Fatalf("unexpected redirect url: %s", result.RedirectURL)
	}
}

func TestChargeCardDeclinedIsFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
				"payment_intent": map[string]interface{}{
					"id": "pi_test_3",
				},
			},
		})
	}))
	defer server.Close()

	p := New(Config{SecretKey: "sk_test_123", APIBaseURL: server.URL})
	result, err := p.Charge(context.Background(), payment.ChargeInput{
		AmountCents: 100,
		Currency:    "USD",
		MethodRef:   "pm_card_declined",
	})
	if err != nil {
		t.Fatalf("business decline should not be an error: %v", err)
	}
	if result.Status != payment.StatusFailed {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.FailureReason != "Your card was declined." {
		t.Fatalf("unexpected failure reason: %s", result.FailureReason)
	}
	if result.ProviderRef != "pi_test_3" {
		t.Fatalf("unexpected provider ref: %s", result.ProviderRef)
	}
}

func TestQueryMapsIntentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pi_test_4",
			"status": "processing",
		})
	}))
	defer server.Close()

	p := New(Config{SecretKey: "sk_test_123", APIBaseURL: server.URL})
	result, err := p.Query(context.Background(), "pi_test_4")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Status != payment.StatusPending {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

func TestToMinorAmount(t *testing.T) {
	if got := toMinorAmount(12800, "USD"); got != 12800 {
		t.Fatalf("usd minor amount want 12800 got %d", got)
	}
	// 零小数位币种：分值折算回整数金额
	if got := toMinorAmount(128000, "JPY"); got != 1280 {
		t.Fatalf("jpy minor amount want 1280 got %d", got)
	}
}
