package repository

import (
	"errors"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// PromoCodeRepository 优惠码数据访问接口
type PromoCodeRepository interface {
	GetByID(id uint) (*models.PromoCode, error)
	GetByCode(code string) (*models.PromoCode, error)
	Create(code *models.PromoCode) error
	Update(code *models.PromoCode) error
	Delete(id uint) error
	List(filter PromoCodeListFilter) ([]models.PromoCode, int64, error)
	ReserveUsage(id uint) (bool, error)
	ReleaseUsage(id uint) error
	WithTx(tx *gorm.DB) *GormPromoCodeRepository
}

// PromoCodeListFilter 优惠码列表筛选
type PromoCodeListFilter struct {
	Code     string
	IsActive *bool
	Page     int
	PageSize int
}

// GormPromoCodeRepository GORM 实现
type GormPromoCodeRepository struct {
	db *gorm.DB
}

// NewPromoCodeRepository 创建优惠码仓库
func NewPromoCodeRepository(db *gorm.DB) *GormPromoCodeRepository {
	return &GormPromoCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPromoCodeRepository) WithTx(tx *gorm.DB) *GormPromoCodeRepository {
	if tx == nil {
		return r
	}
	return &GormPromoCodeRepository{db: tx}
}

// GetByID 根据ID获取优惠码
func (r *GormPromoCodeRepository) GetByID(id uint) (*models.PromoCode, error) {
	var code models.PromoCode
	if err := r.db.First(&code, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// GetByCode 根据优惠码获取记录
func (r *GormPromoCodeRepository) GetByCode(code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.Where("code = ?", code).First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// Create 创建优惠码
func (r *GormPromoCodeRepository) Create(code *models.PromoCode) error {
	return r.db.Create(code).Error
}

// Update 更新优惠码
func (r *GormPromoCodeRepository) Update(code *models.PromoCode) error {
	return r.db.Save(code).Error
}

// Delete 删除优惠码
func (r *GormPromoCodeRepository) Delete(id uint) error {
	return r.db.Delete(&models.PromoCode{}, id).Error
}

// List 获取优惠码列表
func (r *GormPromoCodeRepository) List(filter PromoCodeListFilter) ([]models.PromoCode, int64, error) {
	query := r.db.Model(&models.PromoCode{})

	if filter.Code != "" {
		query = query.Where("code = ?", filter.Code)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var codes []models.PromoCode
	if err := query.Order("id desc").Find(&codes).Error; err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

// ReserveUsage 原子占用一次使用额度；并发下命中上限时返回 false。
// 上限校验与计数更新必须在同一条 UPDATE 内完成，不能读后写。
func (r *GormPromoCodeRepository) ReserveUsage(id uint) (bool, error) {
	result := r.db.Model(&models.PromoCode{}).
		Where("id = ?", id).
		Where("usage_limit = 0 OR used_count < usage_limit").
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseUsage 释放一次使用额度（支付失败/订单取消回滚）
func (r *GormPromoCodeRepository) ReleaseUsage(id uint) error {
	return r.db.Model(&models.PromoCode{}).
		Where("id = ?", id).
		Where("used_count >= ?", 1).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
}
