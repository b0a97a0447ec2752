package repository

import (
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// LoyaltyRewardRepository 积分奖励数据访问接口
type LoyaltyRewardRepository interface {
	GetByID(id uint) (*models.LoyaltyReward, error)
	GetByCode(code string) (*models.LoyaltyReward, error)
	Create(reward *models.LoyaltyReward) error
	MarkConsumed(id uint, orderID uint) (bool, error)
	ListByUser(userID uint) ([]models.LoyaltyReward, error)
	WithTx(tx *gorm.DB) *GormLoyaltyRewardRepository
}

// GormLoyaltyRewardRepository GORM 实现
type GormLoyaltyRewardRepository struct {
	db *gorm.DB
}

// NewLoyaltyRewardRepository 创建积分奖励仓库
func NewLoyaltyRewardRepository(db *gorm.DB) *GormLoyaltyRewardRepository {
	return &GormLoyaltyRewardRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLoyaltyRewardRepository) WithTx(tx *gorm.DB) *GormLoyaltyRewardRepository {
	if tx == nil {
		return r
	}
	return &GormLoyaltyRewardRepository{db: tx}
}

// GetByID 根据ID获取奖励
func (r *GormLoyaltyRewardRepository) GetByID(id uint) (*models.LoyaltyReward, error) {
	var reward models.LoyaltyReward
	if err := r.db.First(&reward, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

// GetByCode 根据兑换码获取奖励
func (r *GormLoyaltyRewardRepository) GetByCode(code string) (*models.LoyaltyReward, error) {
	var reward models.LoyaltyReward
	if err := r.db.Where("code = ?", code).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

// Create 创建奖励
func (r *GormLoyaltyRewardRepository) Create(reward *models.LoyaltyReward) error {
	return r.db.Create(reward).Error
}

// MarkConsumed 原子消费一次性奖励；已消费时返回 false
func (r *GormLoyaltyRewardRepository) MarkConsumed(id uint, orderID uint) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.LoyaltyReward{}).
		Where("id = ? AND consumed = ?", id, false).
		Updates(map[string]interface{}{
			"consumed":    true,
			"consumed_at": now,
			"order_id":    orderID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByUser 获取用户的奖励列表
func (r *GormLoyaltyRewardRepository) ListByUser(userID uint) ([]models.LoyaltyReward, error) {
	var rewards []models.LoyaltyReward
	if err := r.db.Where("user_id = ?", userID).Order("id desc").Find(&rewards).Error; err != nil {
		return nil, err
	}
	return rewards, nil
}
