package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表
type Order struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                                                // 主键
	OrderNo              string         `gorm:"uniqueIndex;not null" json:"order_no"`                                // 订单编号
	UserID               uint           `gorm:"index;not null" json:"user_id"`                                       // 买家ID
	Status               string         `gorm:"index;not null" json:"status"`                                        // 履约状态
	PaymentStatus        string         `gorm:"index;not null" json:"payment_status"`                                // 支付状态
	Currency             string         `gorm:"not null" json:"currency"`                                            // 币种
	Subtotal             Money          `gorm:"not null;default:0" json:"subtotal"`                                  // 商品小计（分）
	Tax                  Money          `gorm:"not null;default:0" json:"tax"`                                       // 税额（分）
	ShippingCost         Money          `gorm:"not null;default:0" json:"shipping_cost"`                             // 运费（分）
	OriginalShippingCost Money          `gorm:"not null;default:0" json:"original_shipping_cost"`                    // 免运费前的原始运费（分）
	DiscountTotal        Money          `gorm:"not null;default:0" json:"discount_total"`                            // 优惠总额（分）
	TotalAmount          Money          `gorm:"not null;default:0" json:"total_amount"`                              // 实付金额（分）
	PaymentMethod        string         `gorm:"not null" json:"payment_method"`                                      // 支付方式（stripe/paypal/mpesa）
	IsDigitalOnly        bool           `gorm:"not null;default:false" json:"is_digital_only"`                       // 是否纯数字商品订单
	EscrowRequested      bool           `gorm:"not null;default:false" json:"escrow_requested"`                      // 是否托管结算
	EscrowID             *uint          `gorm:"index" json:"escrow_id,omitempty"`                                    // 托管交易ID
	PromoCodeID          *uint          `gorm:"index" json:"promo_code_id,omitempty"`                                // 优惠码ID
	LoyaltyRewardID      *uint          `gorm:"index" json:"loyalty_reward_id,omitempty"`                            // 积分奖励ID
	AffiliateLinkID      *uint          `gorm:"index" json:"affiliate_link_id,omitempty"`                            // 归因的推广链接ID
	AffiliateCommission  Money          `gorm:"not null;default:0" json:"affiliate_commission"`                      // 推广佣金（分）
	ShippingDetails      JSON           `gorm:"type:json" json:"shipping_details,omitempty"`                         // 收货信息快照
	PaidAt               *time.Time     `gorm:"index" json:"paid_at"`                                                // 支付时间
	SettledAt            *time.Time     `gorm:"index" json:"settled_at"`                                             // 结算入账完成时间
	CanceledAt           *time.Time     `gorm:"index" json:"canceled_at"`                                            // 取消时间
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                                             // 创建时间
	UpdatedAt            time.Time      `gorm:"index" json:"updated_at"`                                             // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                                      // 软删除时间

	Items     []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`     // 订单项
	Discounts []OrderDiscount `gorm:"foreignKey:OrderID" json:"discounts,omitempty"` // 已应用的优惠
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
