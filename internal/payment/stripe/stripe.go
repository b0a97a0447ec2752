package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/payment"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid   = errors.New("stripe config invalid")
	ErrRequestFailed   = errors.New("stripe request failed")
	ErrResponseInvalid = errors.New("stripe response invalid")
)

const (
	defaultAPIBaseURL = "https://api.stripe.com"
	defaultTimeout    = 12 * time.Second
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe 配置。
type Config struct {
	SecretKey  string `json:"secret_key"`
	APIBaseURL string `json:"api_base_url"`
	ReturnURL  string `json:"return_url"`
}

// Processor payment.Processor 的 Stripe 实现。
type Processor struct {
	cfg Config
}

// New 创建 Stripe 处理器。
func New(cfg Config) *Processor {
	cfg.normalize()
	return &Processor{cfg: cfg}
}

// Name 处理器名称。
func (p *Processor) Name() string {
	return "stripe"
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Charge 创建并确认 PaymentIntent。
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
	methodRef := strings.TrimSpace(input.MethodRef)
	if methodRef == "" {
		return nil, fmt.Errorf("%w: method_ref is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorAmount(input.AmountCents, currency), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("payment_method", methodRef)
	form.Set("confirm", "true")
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "always")
	if returnURL := strings.TrimSpace(p.cfg.ReturnURL); returnURL != "" {
		form.Set("return_url", returnURL)
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		form.Set("description", desc)
	}
	for key, value := range input.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	raw, statusCode, err := p.doFormRequest(ctx, http.MethodPost, "/v1/payment_intents", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return chargeFailure(raw, statusCode)
	}
	return parseIntent(raw)
}

// Refund 按扣款流水号退款。
func (p *Processor) Refund(ctx context.Context, input payment.RefundInput) (*payment.RefundResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	chargeRef := strings.TrimSpace(input.ChargeRef)
	if chargeRef == "" {
		return nil, fmt.Errorf("%w: charge_ref is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))

	form := url.Values{}
	form.Set("payment_intent", chargeRef)
	if input.AmountCents > 0 {
		form.Set("amount", strconv.FormatInt(toMinorAmount(input.AmountCents, currency), 10))
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		form.Set("metadata[reason]", reason)
	}

	raw, statusCode, err := p.doFormRequest(ctx, http.MethodPost, "/v1/refunds", form, "")
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
	switch strings.ToLower(strings.TrimSpace(readString(raw, "status"))) {
	case "succeeded":
		result.Status = payment.StatusSucceeded
	case "failed", "canceled":
		result.Status = payment.StatusFailed
	default:
		result.Status = payment.StatusPending
	}
	if result.ProviderRef == "" {
		return nil, fmt.Errorf("%w: missing refund id", ErrResponseInvalid)
	}
	return result, nil
}

// Query 按流水号查询 PaymentIntent 状态。
func (p *Processor) Query(ctx context.Context, providerRef string) (*payment.ChargeResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, fmt.Errorf("%w: provider_ref is required", ErrConfigInvalid)
	}
	path := fmt.Sprintf("/v1/payment_intents/%s", url.PathEscape(providerRef))
	raw, statusCode, err := p.doGetRequest(ctx, path)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query payment intent status %d", ErrResponseInvalid, statusCode)
	}
	return parseIntent(raw)
}

func parseIntent(raw map[string]interface{}) (*payment.ChargeResult, error) {
	result := &payment.ChargeResult{
		ProviderRef: strings.TrimSpace(readString(raw, "id")),
		Raw:         raw,
	}
	if result.ProviderRef == "" {
		return nil, fmt.Errorf("%w: missing payment intent id", ErrResponseInvalid)
	}
	status := strings.ToLower(strings.TrimSpace(readString(raw, "status")))
	switch status {
	case "succeeded":
		result.Status = payment.StatusSucceeded
	case "requires_action", "requires_confirmation":
		result.Status = payment.StatusRedirectRequired
		result.RedirectURL = readRedirectURL(raw)
	case "processing", "requires_capture":
		result.Status = payment.StatusPending
	case "canceled", "requires_payment_method":
		result.Status = payment.StatusFailed
		result.FailureReason = readFailureReason(raw)
	default:
		result.Status = payment.StatusPending
	}
	return result, nil
}

func chargeFailure(raw map[string]interface{}, statusCode int) (*payment.ChargeResult, error) {
	errObj := readMap(raw, "error")
	if errObj == nil {
		return nil, fmt.Errorf("%w: create payment intent status %d", ErrResponseInvalid, statusCode)
	}
	// card_error 等业务拒绝归一化为 failed，由调用方决定展示
	reason := strings.TrimSpace(readString(errObj, "message"))
	if reason == "" {
		reason = strings.TrimSpace(readString(errObj, "code"))
	}
	return &payment.ChargeResult{
		ProviderRef:   strings.TrimSpace(readString(readMap(errObj, "payment_intent"), "id")),
		Status:        payment.StatusFailed,
		FailureReason: reason,
		Raw:           raw,
	}, nil
}

func readRedirectURL(raw map[string]interface{}) string {
	nextAction := readMap(raw, "next_action")
	if nextAction == nil {
		return ""
	}
	redirect := readMap(nextAction, "redirect_to_url")
	if redirect == nil {
		return ""
	}
	return strings.TrimSpace(readString(redirect, "url"))
}

func readFailureReason(raw map[string]interface{}) string {
	lastError := readMap(raw, "last_payment_error")
	if lastError == nil {
		return ""
	}
	return strings.TrimSpace(readString(lastError, "message"))
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

// toMinorAmount 将分值换算为处理器最小单位（零小数位币种除以 100）
func toMinorAmount(cents int64, currency string) int64 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).Round(0).IntPart()
	}
	return cents
}

func (p *Processor) doFormRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (map[string]interface{}, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := p.cfg.APIBaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return doRequest(req)
}

func (p *Processor) doGetRequest(ctx context.Context, path string) (map[string]interface{}, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	return doRequest(req)
}

func doRequest(req *http.Request) (map[string]interface{}, int, error) {
	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, resp.StatusCode, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}
