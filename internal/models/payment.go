package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 支付流水（扣款/退款/放款）
type Payment struct {
	ID             uint           `gorm:"primarykey" json:"id"`                     // 主键
	OrderID        *uint          `gorm:"index" json:"order_id,omitempty"`          // 订单ID
	EscrowID       *uint          `gorm:"index" json:"escrow_id,omitempty"`         // 托管交易ID
	Kind           string         `gorm:"index;not null" json:"kind"`               // 流水类型（charge/refund/payout）
	Processor      string         `gorm:"index;not null" json:"processor"`          // 处理器（stripe/paypal/mpesa）
	MethodRef      string         `gorm:"type:varchar(200)" json:"-"`               // 支付方式凭据引用
	IdempotencyKey string         `gorm:"uniqueIndex" json:"idempotency_key"`       // 幂等键
	Amount         Money          `gorm:"not null;default:0" json:"amount"`         // 金额（分）
	Currency       string         `gorm:"not null" json:"currency"`                 // 币种
	Status         string         `gorm:"index;not null" json:"status"`             // 状态（succeeded/pending/redirect_required/failed）
	ProviderRef    string         `gorm:"index" json:"provider_ref"`                // 处理器流水号
	ProviderRaw    JSON           `gorm:"type:json" json:"provider_raw,omitempty"`  // 处理器原始响应
	RedirectURL    string         `gorm:"type:text" json:"redirect_url,omitempty"`  // 跳转链接（redirect_required 时）
	FailureReason  string         `gorm:"type:text" json:"failure_reason,omitempty"` // 失败原因
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                  // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                  // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                           // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
