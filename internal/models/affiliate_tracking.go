package models

import (
	"time"
)

// AffiliateTracking 推广点击追踪记录（仅追加，转化后保留审计）
type AffiliateTracking struct {
	ID               uint       `gorm:"primarykey" json:"id"`                          // 主键
	LinkID           uint       `gorm:"index;not null" json:"link_id"`                 // 推广链接ID
	SessionID        string     `gorm:"index;not null" json:"session_id"`              // 访客会话标识
	UserID           *uint      `gorm:"index" json:"user_id,omitempty"`                // 登录后绑定的用户ID
	IPHash           string     `gorm:"type:varchar(64)" json:"-"`                     // 客户端IP哈希
	FirstClickAt     time.Time  `gorm:"index;not null" json:"first_click_at"`          // 首次点击时间
	LastClickAt      time.Time  `gorm:"index;not null" json:"last_click_at"`           // 最近点击时间
	ClickCount       int        `gorm:"not null;default:1" json:"click_count"`         // 点击次数
	Converted        bool       `gorm:"index;not null;default:false" json:"converted"` // 是否已转化
	ConvertedOrderID *uint      `gorm:"index" json:"converted_order_id,omitempty"`     // 转化订单ID
	ConvertedAmount  Money      `gorm:"not null;default:0" json:"converted_amount"`    // 转化成交金额（分）
	CommissionAmount Money      `gorm:"not null;default:0" json:"commission_amount"`   // 转化佣金（分）
	ConvertedAt      *time.Time `gorm:"index" json:"converted_at"`                     // 转化时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt        time.Time  `gorm:"index" json:"updated_at"`                       // 更新时间
}

// TableName 指定表名
func (AffiliateTracking) TableName() string {
	return "affiliate_trackings"
}
