package repository

import (
	"errors"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// AffiliateLinkRepository 推广链接数据访问接口
type AffiliateLinkRepository interface {
	Create(link *models.AffiliateLink) error
	GetByID(id uint) (*models.AffiliateLink, error)
	GetByCode(code string) (*models.AffiliateLink, error)
	Update(link *models.AffiliateLink) error
	Delete(id uint) error
	List(filter AffiliateLinkListFilter) ([]models.AffiliateLink, int64, error)
	IncrementClicks(id uint) error
	ApplyConversion(id uint, revenue, earnings models.Money) error
	EarningsSummary(expertID uint) (*AffiliateEarnings, error)
	WithTx(tx *gorm.DB) *GormAffiliateLinkRepository
}

// AffiliateEarnings 专家推广收益汇总
type AffiliateEarnings struct {
	LinkCount       int64        `json:"link_count"`
	TotalClicks     int64        `json:"total_clicks"`
	TotalConversion int64        `json:"total_conversions"`
	TotalRevenue    models.Money `json:"total_revenue"`
	TotalEarnings   models.Money `json:"total_earnings"`
}

// GormAffiliateLinkRepository GORM 实现
type GormAffiliateLinkRepository struct {
	db *gorm.DB
}

// NewAffiliateLinkRepository 创建推广链接仓库
func NewAffiliateLinkRepository(db *gorm.DB) *GormAffiliateLinkRepository {
	return &GormAffiliateLinkRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateLinkRepository) WithTx(tx *gorm.DB) *GormAffiliateLinkRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateLinkRepository{db: tx}
}

// Create 创建推广链接
func (r *GormAffiliateLinkRepository) Create(link *models.AffiliateLink) error {
	return r.db.Create(link).Error
}

// GetByID 根据ID获取推广链接
func (r *GormAffiliateLinkRepository) GetByID(id uint) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := r.db.First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetByCode 根据推广码获取推广链接
func (r *GormAffiliateLinkRepository) GetByCode(code string) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	if err := r.db.Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// Update 更新推广链接
func (r *GormAffiliateLinkRepository) Update(link *models.AffiliateLink) error {
	return r.db.Save(link).Error
}

// Delete 删除推广链接
func (r *GormAffiliateLinkRepository) Delete(id uint) error {
	return r.db.Delete(&models.AffiliateLink{}, id).Error
}

// List 获取推广链接列表
func (r *GormAffiliateLinkRepository) List(filter AffiliateLinkListFilter) ([]models.AffiliateLink, int64, error) {
	query := r.db.Model(&models.AffiliateLink{})

	if filter.ExpertID > 0 {
		query = query.Where("expert_id = ?", filter.ExpertID)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var links []models.AffiliateLink
	if err := query.Order("id desc").Find(&links).Error; err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

// IncrementClicks 累计点击数
func (r *GormAffiliateLinkRepository) IncrementClicks(id uint) error {
	return r.db.Model(&models.AffiliateLink{}).
		Where("id = ?", id).
		UpdateColumn("click_count", gorm.Expr("click_count + 1")).Error
}

// ApplyConversion 累计转化计数与金额
func (r *GormAffiliateLinkRepository) ApplyConversion(id uint, revenue, earnings models.Money) error {
	return r.db.Model(&models.AffiliateLink{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"conversion_count": gorm.Expr("conversion_count + 1"),
			"total_revenue":    gorm.Expr("total_revenue + ?", revenue),
			"total_earnings":   gorm.Expr("total_earnings + ?", earnings),
		}).Error
}

// EarningsSummary 汇总专家所有链接的推广收益
func (r *GormAffiliateLinkRepository) EarningsSummary(expertID uint) (*AffiliateEarnings, error) {
	var summary AffiliateEarnings
	row := r.db.Model(&models.AffiliateLink{}).
		Select("COUNT(*) AS link_count, COALESCE(SUM(click_count),0) AS total_clicks, COALESCE(SUM(conversion_count),0) AS total_conversion, COALESCE(SUM(total_revenue),0) AS total_revenue, COALESCE(SUM(total_earnings),0) AS total_earnings").
		Where("expert_id = ?", expertID).
		Row()
	var revenue, earnings int64
	if err := row.Scan(&summary.LinkCount, &summary.TotalClicks, &summary.TotalConversion, &revenue, &earnings); err != nil {
		return nil, err
	}
	summary.TotalRevenue = models.NewMoneyFromCents(revenue)
	summary.TotalEarnings = models.NewMoneyFromCents(earnings)
	return &summary, nil
}
