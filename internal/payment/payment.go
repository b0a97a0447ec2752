package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrProcessorNotFound 未注册的支付处理器
	ErrProcessorNotFound = errors.New("payment processor not found")
)

// 归一化后的支付状态词汇。redirect_required 一律视为未结清。
const (
	StatusSucceeded        = "succeeded"
	StatusPending          = "pending"
	StatusRedirectRequired = "redirect_required"
	StatusFailed           = "failed"
)

// ChargeInput 扣款输入
type ChargeInput struct {
	IdempotencyKey string            // 调用方提供的幂等键，处理器原样透传
	AmountCents    int64             // 金额（分）
	Currency       string            // 币种
	MethodRef      string            // 支付方式凭据（卡 token、手机号等）
	Description    string            // 账单摘要
	Metadata       map[string]string // 业务元数据（订单号等）
}

// ChargeResult 扣款结果
type ChargeResult struct {
	ProviderRef   string                 // 处理器流水号
	Status        string                 // succeeded/pending/redirect_required/failed
	RedirectURL   string                 // redirect_required 时的跳转地址
	FailureReason string                 // failed 时的原因
	Raw           map[string]interface{} // 处理器原始响应
}

// RefundInput 退款输入
type RefundInput struct {
	ChargeRef   string // 原扣款流水号
	AmountCents int64  // 退款金额（分）
	Currency    string // 币种
	Reason      string // 退款原因
}

// RefundResult 退款结果
type RefundResult struct {
	ProviderRef string                 // 退款流水号
	Status      string                 // succeeded/pending/failed
	Raw         map[string]interface{} // 处理器原始响应
}

// Processor 支付处理器统一契约。
// Charge 非幂等，不做自动重试，重试依赖幂等键；Query 幂等，可有限重试。
type Processor interface {
	Name() string
	Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error)
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
	Query(ctx context.Context, providerRef string) (*ChargeResult, error)
}

// Registry 按名称注册/查找处理器
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry 创建处理器注册表
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register 注册处理器
func (r *Registry) Register(p Processor) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[strings.ToLower(strings.TrimSpace(p.Name()))] = p
}

// Get 按名称查找处理器
func (r *Registry) Get(name string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProcessorNotFound
	}
	return p, nil
}

// Names 返回已注册的处理器名称
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	return names
}

// IsTerminalSuccess 是否已确认成功（仅 succeeded；redirect_required 不算）
func IsTerminalSuccess(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), StatusSucceeded)
}
