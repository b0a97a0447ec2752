package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateLink 推广链接
type AffiliateLink struct {
	ID              uint            `gorm:"primarykey" json:"id"`                              // 主键
	Code            string          `gorm:"uniqueIndex;not null" json:"code"`                  // 推广码
	ExpertID        uint            `gorm:"index;not null" json:"expert_id"`                   // 所属专家ID
	TargetType      string          `gorm:"not null" json:"target_type"`                       // 推广目标类型（product/expert/bundle）
	TargetID        uint            `gorm:"index;not null;default:0" json:"target_id"`         // 目标ID（bundle 为 0）
	CommissionRate  decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"commission_rate"` // 推广佣金比例（0-0.5）
	CustomURL       string          `gorm:"type:varchar(500)" json:"custom_url,omitempty"`     // 自定义落地页
	ExpiresAt       *time.Time      `gorm:"index" json:"expires_at"`                           // 链接过期时间
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`            // 是否启用
	ClickCount      int64           `gorm:"not null;default:0" json:"click_count"`             // 累计点击数
	ConversionCount int64           `gorm:"not null;default:0" json:"conversion_count"`        // 累计转化数
	TotalRevenue    Money           `gorm:"not null;default:0" json:"total_revenue"`           // 累计成交金额（分）
	TotalEarnings   Money           `gorm:"not null;default:0" json:"total_earnings"`          // 累计佣金（分）
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt       time.Time       `gorm:"index" json:"updated_at"`                           // 更新时间
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (AffiliateLink) TableName() string {
	return "affiliate_links"
}
