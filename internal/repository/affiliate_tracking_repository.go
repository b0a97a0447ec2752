package repository

import (
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// AffiliateTrackingRepository 推广点击追踪数据访问接口
type AffiliateTrackingRepository interface {
	Create(tracking *models.AffiliateTracking) error
	GetByID(id uint) (*models.AffiliateTracking, error)
	GetBySessionAndLink(sessionID string, linkID uint) (*models.AffiliateTracking, error)
	RecordClick(id uint, at time.Time) error
	ListCandidates(sessionID string, userID *uint, since time.Time) ([]models.AffiliateTracking, error)
	MarkConverted(id uint, orderID uint, amount, commission models.Money) (bool, error)
	HasConversionForOrder(orderID uint) (bool, error)
	AssociateUser(sessionID string, userID uint) (int64, error)
	WithTx(tx *gorm.DB) *GormAffiliateTrackingRepository
}

// GormAffiliateTrackingRepository GORM 实现
type GormAffiliateTrackingRepository struct {
	db *gorm.DB
}

// NewAffiliateTrackingRepository 创建推广点击追踪仓库
func NewAffiliateTrackingRepository(db *gorm.DB) *GormAffiliateTrackingRepository {
	return &GormAffiliateTrackingRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateTrackingRepository) WithTx(tx *gorm.DB) *GormAffiliateTrackingRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateTrackingRepository{db: tx}
}

// Create 创建追踪记录
func (r *GormAffiliateTrackingRepository) Create(tracking *models.AffiliateTracking) error {
	return r.db.Create(tracking).Error
}

// GetByID 根据ID获取追踪记录
func (r *GormAffiliateTrackingRepository) GetByID(id uint) (*models.AffiliateTracking, error) {
	var tracking models.AffiliateTracking
	if err := r.db.First(&tracking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tracking, nil
}

// GetBySessionAndLink 获取会话在某链接下的追踪记录（一个会话一条）
func (r *GormAffiliateTrackingRepository) GetBySessionAndLink(sessionID string, linkID uint) (*models.AffiliateTracking, error) {
	var tracking models.AffiliateTracking
	if err := r.db.Where("session_id = ? AND link_id = ?", sessionID, linkID).
		First(&tracking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tracking, nil
}

// RecordClick 累计点击并刷新最近点击时间
func (r *GormAffiliateTrackingRepository) RecordClick(id uint, at time.Time) error {
	return r.db.Model(&models.AffiliateTracking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"click_count":   gorm.Expr("click_count + 1"),
			"last_click_at": at,
		}).Error
}

// ListCandidates 列出归因候选：会话或用户匹配、窗口内、未转化。
// 按最近点击倒序，点击时间相同时按创建时间倒序（最后点击优先）。
func (r *GormAffiliateTrackingRepository) ListCandidates(sessionID string, userID *uint, since time.Time) ([]models.AffiliateTracking, error) {
	query := r.db.Model(&models.AffiliateTracking{}).
		Where("converted = ?", false).
		Where("last_click_at >= ?", since)
	if userID != nil && *userID > 0 {
		query = query.Where("session_id = ? OR user_id = ?", sessionID, *userID)
	} else {
		query = query.Where("session_id = ?", sessionID)
	}

	var trackings []models.AffiliateTracking
	if err := query.Order("last_click_at desc, created_at desc, id desc").
		Find(&trackings).Error; err != nil {
		return nil, err
	}
	return trackings, nil
}

// MarkConverted 原子标记转化（仅第一次生效），写入转化快照
func (r *GormAffiliateTrackingRepository) MarkConverted(id uint, orderID uint, amount, commission models.Money) (bool, error) {
	now := time.Now()
	result := r.db.Model(&models.AffiliateTracking{}).
		Where("id = ? AND converted = ?", id, false).
		Updates(map[string]interface{}{
			"converted":          true,
			"converted_order_id": orderID,
			"converted_amount":   amount,
			"commission_amount":  commission,
			"converted_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HasConversionForOrder 该订单是否已有转化记录
func (r *GormAffiliateTrackingRepository) HasConversionForOrder(orderID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.AffiliateTracking{}).
		Where("converted = ? AND converted_order_id = ?", true, orderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AssociateUser 将会话的追踪记录绑定到登录用户
func (r *GormAffiliateTrackingRepository) AssociateUser(sessionID string, userID uint) (int64, error) {
	result := r.db.Model(&models.AffiliateTracking{}).
		Where("session_id = ? AND user_id IS NULL", sessionID).
		UpdateColumn("user_id", userID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
