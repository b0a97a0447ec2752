package models

import (
	"time"

	"gorm.io/gorm"
)

// LoyaltyReward 积分兑换的一次性奖励
type LoyaltyReward struct {
	ID          uint           `gorm:"primarykey" json:"id"`                   // 主键
	Code        string         `gorm:"uniqueIndex;not null" json:"code"`       // 一次性兑换码
	UserID      uint           `gorm:"index;not null" json:"user_id"`          // 持有人ID
	Type        string         `gorm:"not null" json:"type"`                   // 类型（percentage/fixed/free_shipping）
	Value       Money          `gorm:"not null;default:0" json:"value"`        // 数值（百分比或固定金额）
	MaxDiscount Money          `gorm:"not null;default:0" json:"max_discount"` // 最大优惠金额（分，0 表示不封顶）
	ExpiresAt   *time.Time     `gorm:"index" json:"expires_at"`                // 过期时间
	Consumed    bool           `gorm:"not null;default:false" json:"consumed"` // 是否已消费
	ConsumedAt  *time.Time     `gorm:"index" json:"consumed_at"`               // 消费时间
	OrderID     *uint          `gorm:"index" json:"order_id,omitempty"`        // 消费订单ID
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (LoyaltyReward) TableName() string {
	return "loyalty_rewards"
}
