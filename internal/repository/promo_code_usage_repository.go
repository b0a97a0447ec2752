package repository

import (
	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// PromoCodeUsageRepository 优惠码使用记录数据访问接口
type PromoCodeUsageRepository interface {
	Create(usage *models.PromoCodeUsage) error
	CountByUser(promoCodeID, userID uint) (int64, error)
	ListByOrderID(orderID uint) ([]models.PromoCodeUsage, error)
	ListByUser(filter PromoUsageListFilter) ([]models.PromoCodeUsage, int64, error)
	DeleteByOrderID(orderID uint) error
	WithTx(tx *gorm.DB) *GormPromoCodeUsageRepository
}

// GormPromoCodeUsageRepository GORM 实现
type GormPromoCodeUsageRepository struct {
	db *gorm.DB
}

// NewPromoCodeUsageRepository 创建优惠码使用记录仓库
func NewPromoCodeUsageRepository(db *gorm.DB) *GormPromoCodeUsageRepository {
	return &GormPromoCodeUsageRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPromoCodeUsageRepository) WithTx(tx *gorm.DB) *GormPromoCodeUsageRepository {
	if tx == nil {
		return r
	}
	return &GormPromoCodeUsageRepository{db: tx}
}

// Create 创建使用记录
func (r *GormPromoCodeUsageRepository) Create(usage *models.PromoCodeUsage) error {
	return r.db.Create(usage).Error
}

// CountByUser 获取用户使用次数
func (r *GormPromoCodeUsageRepository) CountByUser(promoCodeID, userID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.PromoCodeUsage{}).
		Where("promo_code_id = ? AND user_id = ?", promoCodeID, userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByOrderID 获取订单使用记录
func (r *GormPromoCodeUsageRepository) ListByOrderID(orderID uint) ([]models.PromoCodeUsage, error) {
	var usages []models.PromoCodeUsage
	if err := r.db.Where("order_id = ?", orderID).Find(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}

// ListByUser 获取用户使用记录
func (r *GormPromoCodeUsageRepository) ListByUser(filter PromoUsageListFilter) ([]models.PromoCodeUsage, int64, error) {
	query := r.db.Model(&models.PromoCodeUsage{}).Where("user_id = ?", filter.UserID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var usages []models.PromoCodeUsage
	if err := query.Order("id desc").Find(&usages).Error; err != nil {
		return nil, 0, err
	}
	return usages, total, nil
}

// DeleteByOrderID 删除订单使用记录（订单取消回滚）
func (r *GormPromoCodeUsageRepository) DeleteByOrderID(orderID uint) error {
	return r.db.Where("order_id = ?", orderID).Delete(&models.PromoCodeUsage{}).Error
}
