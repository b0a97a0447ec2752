package models

import (
	"time"

	"gorm.io/gorm"
)

// PromoCodeUsage 优惠码使用记录
type PromoCodeUsage struct {
	ID             uint           `gorm:"primarykey" json:"id"`                         // 主键
	PromoCodeID    uint           `gorm:"index;not null" json:"promo_code_id"`          // 优惠码ID
	UserID         uint           `gorm:"index;not null" json:"user_id"`                // 用户ID
	OrderID        uint           `gorm:"index;not null" json:"order_id"`               // 订单ID
	DiscountAmount Money          `gorm:"not null;default:0" json:"discount_amount"`    // 优惠金额（分）
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                      // 创建时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                               // 软删除时间
}

// TableName 指定表名
func (PromoCodeUsage) TableName() string {
	return "promo_code_usages"
}
