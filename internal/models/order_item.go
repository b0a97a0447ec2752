package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem 订单项表
type OrderItem struct {
	ID                 uint            `gorm:"primarykey" json:"id"`                              // 主键
	OrderID            uint            `gorm:"index;not null" json:"order_id"`                    // 订单ID
	ProductID          uint            `gorm:"index;not null" json:"product_id"`                  // 商品ID
	ExpertID           uint            `gorm:"index;not null" json:"expert_id"`                   // 卖家（专家）ID
	TitleJSON          JSON            `gorm:"type:json" json:"title"`                            // 商品标题快照
	UnitPrice          Money           `gorm:"not null;default:0" json:"unit_price"`              // 单价（分）
	Quantity           int             `gorm:"not null" json:"quantity"`                          // 数量
	TotalPrice         Money           `gorm:"not null;default:0" json:"total_price"`             // 小计（分）
	IsDigital          bool            `gorm:"not null;default:false" json:"is_digital"`          // 是否数字商品
	DiscountShare      Money           `gorm:"not null;default:0" json:"discount_share"`          // 优惠分摊金额（分）
	CommissionRate     decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"commission_rate"` // 平台佣金比例（0-1）
	CommissionAmount   Money           `gorm:"not null;default:0" json:"commission_amount"`       // 平台佣金（分）
	ExpertPayoutAmount Money           `gorm:"not null;default:0" json:"expert_payout_amount"`    // 卖家应得（分）
	DeliveredAt        *time.Time      `gorm:"index" json:"delivered_at"`                         // 数字商品交付时间
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt          time.Time       `gorm:"index" json:"updated_at"`                           // 更新时间
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
