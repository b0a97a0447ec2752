package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品（结算核心只读：定价、佣金覆盖、优惠适用范围）
type Product struct {
	ID             uint             `gorm:"primarykey" json:"id"`                          // 主键
	ExpertID       uint             `gorm:"index;not null" json:"expert_id"`               // 卖家（专家）ID
	TitleJSON      JSON             `gorm:"type:json" json:"title"`                        // 多语言标题
	CategoryID     uint             `gorm:"index;not null;default:0" json:"category_id"`   // 分类ID
	Price          Money            `gorm:"not null;default:0" json:"price"`               // 单价（分）
	IsDigital      bool             `gorm:"not null;default:false" json:"is_digital"`      // 是否数字商品
	CommissionRate *decimal.Decimal `gorm:"type:decimal(6,4)" json:"commission_rate"`      // 佣金比例覆盖（空则用平台默认）
	IsActive       bool             `gorm:"not null;default:true" json:"is_active"`        // 是否上架
	CreatedAt      time.Time        `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt      time.Time        `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
