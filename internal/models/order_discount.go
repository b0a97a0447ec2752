package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderDiscount 订单优惠明细
type OrderDiscount struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                             // 主键
	OrderID              uint           `gorm:"index;not null" json:"order_id"`                   // 订单ID
	Code                 string         `gorm:"index;not null" json:"code"`                       // 优惠码/奖励码
	Type                 string         `gorm:"not null" json:"type"`                             // 类型（percentage/fixed/free_shipping/loyalty）
	Value                Money          `gorm:"not null;default:0" json:"value"`                  // 原始数值（百分比或固定金额）
	Amount               Money          `gorm:"not null;default:0" json:"amount"`                 // 实际优惠金额（分，免运费为 0）
	OriginalShippingCost Money          `gorm:"not null;default:0" json:"original_shipping_cost"` // 免运费前的运费（仅免运费条目）
	PromoCodeID          *uint          `gorm:"index" json:"promo_code_id,omitempty"`             // 来源优惠码ID
	LoyaltyRewardID      *uint          `gorm:"index" json:"loyalty_reward_id,omitempty"`         // 来源积分奖励ID
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                          // 创建时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                   // 软删除时间
}

// TableName 指定表名
func (OrderDiscount) TableName() string {
	return "order_discounts"
}
