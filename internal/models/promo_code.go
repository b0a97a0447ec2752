package models

import (
	"time"

	"gorm.io/gorm"
)

// PromoCode 优惠码
type PromoCode struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                          // 主键
	Code                string         `gorm:"uniqueIndex;not null" json:"code"`              // 优惠码
	Type                string         `gorm:"not null" json:"type"`                          // 类型（percentage/fixed/free_shipping）
	Value               Money          `gorm:"not null;default:0" json:"value"`               // 数值（百分比或固定金额）
	MinPurchase         Money          `gorm:"not null;default:0" json:"min_purchase"`        // 使用门槛（分）
	MaxDiscount         Money          `gorm:"not null;default:0" json:"max_discount"`        // 最大优惠金额（分，0 表示不封顶）
	UsageLimit          int            `gorm:"not null;default:0" json:"usage_limit"`         // 总使用上限（0 表示不限制）
	UsedCount           int            `gorm:"not null;default:0" json:"used_count"`          // 已使用次数
	PerUserLimit        int            `gorm:"not null;default:0" json:"per_user_limit"`      // 每人使用上限（0 表示不限制）
	EligibleUserIDs     StringArray    `gorm:"type:json" json:"eligible_user_ids"`            // 指定用户ID集合（空表示全部）
	EligibleProductIDs  StringArray    `gorm:"type:json" json:"eligible_product_ids"`         // 适用商品ID集合（空表示全部）
	EligibleCategoryIDs StringArray    `gorm:"type:json" json:"eligible_category_ids"`        // 适用分类ID集合（空表示全部）
	StartsAt            *time.Time     `gorm:"index" json:"starts_at"`                        // 生效时间
	EndsAt              *time.Time     `gorm:"index" json:"ends_at"`                          // 失效时间
	IsActive            bool           `gorm:"not null;default:true" json:"is_active"`        // 是否启用
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (PromoCode) TableName() string {
	return "promo_codes"
}
