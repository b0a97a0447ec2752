package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户（身份认证由外部系统负责，此处仅保留结算需要的最小字段）
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`                   // 主键
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`      // 邮箱
	Role      string         `gorm:"index;not null" json:"role"`             // 角色（user/expert/mediator/admin）
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"` // 是否启用
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
