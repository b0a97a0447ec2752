package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EscrowTransaction 托管交易
type EscrowTransaction struct {
	ID                uint            `gorm:"primarykey" json:"id"`                                   // 主键
	EscrowNo          string          `gorm:"uniqueIndex;not null" json:"escrow_no"`                  // 托管编号
	SenderID          uint            `gorm:"index;not null" json:"sender_id"`                        // 付款方ID
	RecipientID       uint            `gorm:"index;not null" json:"recipient_id"`                     // 收款方ID
	OrderID           *uint           `gorm:"index" json:"order_id,omitempty"`                        // 关联订单ID
	Amount            Money           `gorm:"not null;default:0" json:"amount"`                       // 托管金额（分）
	ReleasedAmount    Money           `gorm:"not null;default:0" json:"released_amount"`              // 已放款金额（分）
	RefundedAmount    Money           `gorm:"not null;default:0" json:"refunded_amount"`              // 已退款金额（分）
	Currency          string          `gorm:"not null" json:"currency"`                               // 币种
	Status            string          `gorm:"index;not null" json:"status"`                           // 状态
	ReleaseConditions string          `gorm:"type:text" json:"release_conditions"`                    // 放款条件说明
	PaymentMethod     string          `gorm:"not null" json:"payment_method"`                         // 注资支付方式
	ChargeRef         string          `gorm:"index" json:"charge_ref"`                                // 处理器扣款流水号（退款依据）
	ExpiresAt         *time.Time      `gorm:"index" json:"expires_at"`                                // 到期时间
	FundedAt          *time.Time      `gorm:"index" json:"funded_at"`                                 // 注资时间
	DisputeReason     string          `gorm:"type:text" json:"dispute_reason,omitempty"`              // 争议原因
	DisputeEvidence   StringArray     `gorm:"type:json" json:"dispute_evidence,omitempty"`            // 争议证据
	DisputeOpenedBy   *uint           `gorm:"index" json:"dispute_opened_by,omitempty"`               // 争议发起人ID
	DisputedAt        *time.Time      `gorm:"index" json:"disputed_at"`                               // 争议发起时间
	ResolutionType    string          `json:"resolution_type,omitempty"`                              // 裁决方式（release/refund/split）
	ResolutionRatio   decimal.Decimal `gorm:"type:decimal(5,4);default:0" json:"resolution_ratio"`   // 分账比例（split 时收款方占比）
	ResolvedBy        *uint           `gorm:"index" json:"resolved_by,omitempty"`                     // 裁决人ID
	ResolvedAt        *time.Time      `gorm:"index" json:"resolved_at"`                               // 裁决时间
	CancelReason      string          `gorm:"type:text" json:"cancel_reason,omitempty"`               // 取消原因
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt         time.Time       `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (EscrowTransaction) TableName() string {
	return "escrow_transactions"
}

// RemainingAmount 尚未放款/退款的托管余额
func (e *EscrowTransaction) RemainingAmount() Money {
	remaining := e.Amount - e.ReleasedAmount - e.RefundedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}
