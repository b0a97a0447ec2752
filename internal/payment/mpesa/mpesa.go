package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
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
	ErrConfigInvalid   = errors.New("mpesa config invalid")
	ErrRequestFailed   = errors.New("mpesa request failed")
	ErrResponseInvalid = errors.New("mpesa response invalid")
	ErrTokenFailed     = errors.New("mpesa token request failed")
)

const (
	defaultAPIBaseURL = "https://api.safaricom.co.ke"
	defaultTimeout    = 12 * time.Second
	timestampLayout   = "20060102150405"
)

// Config M-Pesa（Daraja）配置。
type Config struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	ShortCode      string `json:"short_code"`
	Passkey        string `json:"passkey"`
	APIBaseURL     string `json:"api_base_url"`
	CallbackURL    string `json:"callback_url"`
}

// Processor payment.Processor 的 M-Pesa 实现。
// STK Push 是异步确认模型：Charge 成功受理后返回 pending，由 Query 轮询终态。
type Processor struct {
	cfg Config
}

// New 创建 M-Pesa 处理器。
func New(cfg Config) *Processor {
	cfg.normalize()
	return &Processor{cfg: cfg}
}

// Name 处理器名称。
func (p *Processor) Name() string {
	return "mpesa"
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ConsumerKey) == "" {
		return fmt.Errorf("%w: consumer_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return fmt.Errorf("%w: consumer_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ShortCode) == "" {
		return fmt.Errorf("%w: short_code is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Passkey) == "" {
		return fmt.Errorf("%w: passkey is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Charge 发起 STK Push。MethodRef 为付款人手机号（2547xxxxxxxx）。
func (p *Processor) Charge(ctx context.Context, input payment.ChargeInput) (*payment.ChargeResult, error) {
	if err := ValidateConfig(&p.cfg); err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(input.MethodRef)
	if phone == "" {
		return nil, fmt.Errorf("%w: method_ref is required", ErrConfigInvalid)
	}
	if input.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}

	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": p.cfg.ShortCode,
		"Password":          stkPassword(p.cfg.ShortCode, p.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            wholeAmount(input.AmountCents),
		"PartyA":            phone,
		"PartyB":            p.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       p.cfg.CallbackURL,
		"AccountReference":  input.Metadata["order_no"],
		"TransactionDesc":   strings.TrimSpace(input.Description),
	}

	raw, statusCode, err := p.doJSONRequest(ctx, "/mpesa/stkpush/v1/processrequest", token, payload)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: stk push status %d", ErrResponseInvalid, statusCode)
	}

	result := &payment.ChargeResult{Raw: raw}
	result.ProviderRef = strings.TrimSpace(readString(raw, "CheckoutRequestID"))
	if result.ProviderRef == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrResponseInvalid)
	}
	if strings.TrimSpace(readString(raw, "ResponseCode")) == "0" {
		// 受理成功不等于付款成功，等待用户在手机上确认
		result.Status = payment.StatusPending
	} else {
		result.Status = payment.StatusFailed
		result.FailureReason = strings.TrimSpace(readString(raw, "ResponseDescription"))
	}
	return result, nil
}

// Refund 通过交易冲正退款。
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

	payload := map[string]interface{}{
		"CommandID":              "TransactionReversal",
		"TransactionID":          chargeRef,
		"Amount":                 wholeAmount(input.AmountCents),
		"ReceiverParty":          p.cfg.ShortCode,
		"RecieverIdentifierType": "11",
		"Remarks":                strings.TrimSpace(input.Reason),
		"ResultURL":              p.cfg.CallbackURL,
		"QueueTimeOutURL":        p.cfg.CallbackURL,
	}

	raw, statusCode, err := p.doJSONRequest(ctx, "/mpesa/reversal/v1/request", token, payload)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: reversal status %d", ErrResponseInvalid, statusCode)
	}
	result := &payment.RefundResult{
		ProviderRef: strings.TrimSpace(readString(raw, "ConversationID")),
		Raw:         raw,
	}
	if strings.TrimSpace(readString(raw, "ResponseCode")) == "0" {
		result.Status = payment.StatusPending
	} else {
		result.Status = payment.StatusFailed
	}
	return result, nil
}

// Query 按 CheckoutRequestID 查询 STK Push 结果。
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

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": p.cfg.ShortCode,
		"Password":          stkPassword(p.cfg.ShortCode, p.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": providerRef,
	}

	raw, statusCode, err := p.doJSONRequest(ctx, "/mpesa/stkpushquery/v1/query", token, payload)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: stk query status %d", ErrResponseInvalid, statusCode)
	}

	result := &payment.ChargeResult{ProviderRef: providerRef, Raw: raw}
	resultCode := strings.TrimSpace(readString(raw, "ResultCode"))
	switch resultCode {
	case "0":
		result.Status = payment.StatusSucceeded
	case "":
		result.Status = payment.StatusPending
	case "1032":
		// 用户取消
		result.Status = payment.StatusFailed
		result.FailureReason = "request cancelled by user"
	default:
		result.Status = payment.StatusFailed
		result.FailureReason = strings.TrimSpace(readString(raw, "ResultDesc"))
	}
	return result, nil
}

func (p *Processor) fetchToken(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request failed", ErrTokenFailed)
	}
	req.SetBasicAuth(p.cfg.ConsumerKey, p.cfg.ConsumerSecret)

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

func (p *Processor) doJSONRequest(ctx context.Context, path, token string, payload map[string]interface{}) (map[string]interface{}, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: marshal payload failed", ErrRequestFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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
	c.ConsumerKey = strings.TrimSpace(c.ConsumerKey)
	c.ConsumerSecret = strings.TrimSpace(c.ConsumerSecret)
	c.ShortCode = strings.TrimSpace(c.ShortCode)
	c.Passkey = strings.TrimSpace(c.Passkey)
	c.CallbackURL = strings.TrimSpace(c.CallbackURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

func stkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// wholeAmount M-Pesa 只接受整数金额（先令），分值向上取整
func wholeAmount(cents int64) int64 {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).Ceil().IntPart()
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
		return typed.String()
	case float64:
		return decimal.NewFromFloat(typed).String()
	default:
		return ""
	}
}
