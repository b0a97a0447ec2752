package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid   = errors.New("paypal config invalid")
	ErrRequestFailed   = errors.New("paypal request failed")
	ErrResponseInvalid = errors.New("paypal response invalid")
	ErrTokenFailed     = errors.New("paypal token request failed")
)

const (
	defaultAPIBaseURL = "https://api-m.paypal.com"
	defaultTimeout    = 12 * time.Second
)

// Config PayPal 配置。
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	APIBaseURL   string `json:"api_base_url"`
	ReturnURL    string `json:"return_url"`
	CancelURL    string `json:"cancel_url"`
}

// Processor payment.Processor 的 PayPal 实现。
// Charge 创建 Checkout Order，买家批准前一律 redirect_required。
type Processor struct {
	cfg Config
}

// New 创建 PayPal 处理器。
func New(cfg Config) *Processor {
	cfg.normalize()
	return &Processor{cfg: cfg}
}

// Name 处理器名称。
func (p *Processor) Name() string {
	return "paypal"
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Charge 创建 Checkout Order。
func (p *Processor) Charge(ctx context.Context, input payment.ChargeInput) (*payment.ChargeResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	if input.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]interface{}{
					"currency_code": currency,
					"value":         formatAmount(input.AmountCents),
				},
				"description": strings.TrimSpace(input.Description),
				"custom_id":   input.Metadata["order_no"],
			},
		},
		"application_context": map[string]interface{}{
			"return_url": p.cfg.ReturnURL,
			"cancel_url": p.cfg.CancelURL,
		},
	}

	raw, statusCode, err := p.doJSONRequest(ctx, http.MethodPost, "/v2/checkout/orders", token, payload, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create order status %d", ErrResponseInvalid, statusCode)
	}
	return parseOrder(raw)
}

// Refund 按捕获流水号退款。
func (p *Processor) Refund(ctx context.Context, input payment.RefundInput) (*payment.RefundResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	chargeRef := strings.TrimSpace(input.ChargeRef)
	if chargeRef == "" {
		return nil, fmt.Errorf("%w: charge_ref is required", ErrConfigInvalid)
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{}
	if input.AmountCents > 0 {
		payload["amount"] = map[string]interface{}{
			"currency_code": strings.ToUpper(strings.TrimSpace(input.Currency)),
			"value":         formatAmount(input.AmountCents),
		}
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		payload["note_to_payer"] = reason
	}

	path := fmt.Sprintf("/v2/payments/captures/%s/refund", url.PathEscape(chargeRef))
	raw, statusCode, err := p.doJSONRequest(ctx, http.MethodPost, path, token, payload, "")
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: refund status %d", ErrResponseInvalid, statusCode)
	}
	result := &payment.RefundResult{
		ProviderRef: strings.TrimSpace(readString(raw, "id")),
		Raw:         raw,
	}
	switch strings.ToUpper(strings.TrimSpace(readString(raw, "status"))) {
	case "COMPLETED":
		result.Status = payment.StatusSucceeded
	case "CANCELLED", "FAILED":
		result.Status = payment.StatusFailed
	default:
		result.Status = payment.StatusPending
	}
	if result.ProviderRef == "" {
		return nil, fmt.Errorf("%w: missing refund id", ErrResponseInvalid)
	}
	return result, nil
}

// Query 查询 Checkout Order 状态。
func (p *Processor) Query(ctx context.Context, providerRef string) (*payment.ChargeResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, fmt.Errorf("%w: provider_ref is required", ErrConfigInvalid)
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/v2/checkout/orders/%s", url.PathEscape(providerRef))
	raw, statusCode, err := p.doJSONRequest(ctx, http.MethodGet, path, token, nil, "")
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query order status %d", ErrResponseInvalid, statusCode)
	}
	return parseOrder(raw)
}

func parseOrder(raw map[string]interface{}) (*payment.ChargeResult, error) {
	result := &payment.ChargeResult{
		ProviderRef: strings.TrimSpace(readString(raw, "id")),
		Raw:         raw,
	}
	if result.ProviderRef == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrResponseInvalid)
	}
	switch strings.ToUpper(strings.TrimSpace(readString(raw, "status"))) {
	case "COMPLETED":
		result.Status = payment.StatusSucceeded
	case "CREATED", "PAYER_ACTION_REQUIRED":
		result.Status = payment.StatusRedirectRequired
		result.RedirectURL = readApproveLink(raw)
	case "APPROVED", "SAVED":
		result.Status = payment.StatusPending
	case "VOIDED":
		result.Status = payment.StatusFailed
	default:
		result.Status = payment.StatusPending
	}
	return result, nil
}

func readApproveLink(raw map[string]interface{}) string {
	links, ok := raw["links"].([]interface{})
	if !ok {
		return ""
	}
	for _, item := range links {
		link, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rel := strings.ToLower(strings.TrimSpace(readString(link, "rel")))
		if rel == "approve" || rel == "payer-action" {
			return strings.TrimSpace(readString(link, "href"))
		}
	}
	return ""
}

func (p *Processor) fetchToken(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build request failed", ErrTokenFailed)
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrTokenFailed, resp.StatusCode)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: decode token failed", ErrTokenFailed)
	}
	token := strings.TrimSpace(readString(raw, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: missing access_token", ErrTokenFailed)
	}
	return token, nil
}

func (p *Processor) doJSONRequest(ctx context.Context, method, path, token string, payload map[string]interface{}, idempotencyKey string) (map[string]interface{}, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: marshal payload failed", ErrRequestFailed)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIBaseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		// PayPal 的请求幂等机制
		req.Header.Set("PayPal-Request-Id", key)
	}

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
		}
	}
	return raw, resp.StatusCode, nil
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

func formatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	typed, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(typed)
}
