package repository

import (
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// EscrowRepository 托管交易数据访问接口
type EscrowRepository interface {
	Create(escrow *models.EscrowTransaction) error
	GetByID(id uint) (*models.EscrowTransaction, error)
	GetByEscrowNo(escrowNo string) (*models.EscrowTransaction, error)
	List(filter EscrowListFilter) ([]models.EscrowTransaction, int64, error)
	TransitionStatus(id uint, fromStatus, toStatus string, extra map[string]interface{}) (bool, error)
	ApplyRelease(id uint, delta models.Money) (bool, error)
	ApplyRefund(id uint, delta models.Money) (bool, error)
	ListExpiredFunded(now time.Time, limit int) ([]models.EscrowTransaction, error)
	WithTx(tx *gorm.DB) *GormEscrowRepository
}

// GormEscrowRepository GORM 实现
type GormEscrowRepository struct {
	db *gorm.DB
}

// NewEscrowRepository 创建托管交易仓库
func NewEscrowRepository(db *gorm.DB) *GormEscrowRepository {
	return &GormEscrowRepository{db: db}
}

// WithTx 绑定事务
func (r *GormEscrowRepository) WithTx(tx *gorm.DB) *GormEscrowRepository {
	if tx == nil {
		return r
	}
	return &GormEscrowRepository{db: tx}
}

// Create 创建托管交易
func (r *GormEscrowRepository) Create(escrow *models.EscrowTransaction) error {
	return r.db.Create(escrow).Error
}

// GetByID 根据ID获取托管交易
func (r *GormEscrowRepository) GetByID(id uint) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	if err := r.db.First(&escrow, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &escrow, nil
}

// GetByEscrowNo 根据托管编号获取托管交易
func (r *GormEscrowRepository) GetByEscrowNo(escrowNo string) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	if err := r.db.Where("escrow_no = ?", escrowNo).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &escrow, nil
}

// List 获取托管交易列表
func (r *GormEscrowRepository) List(filter EscrowListFilter) ([]models.EscrowTransaction, int64, error) {
	query := r.db.Model(&models.EscrowTransaction{})

	if filter.PartyID > 0 {
		query = query.Where("sender_id = ? OR recipient_id = ?", filter.PartyID, filter.PartyID)
	}
	if filter.SenderID > 0 {
		query = query.Where("sender_id = ?", filter.SenderID)
	}
	if filter.RecipientID > 0 {
		query = query.Where("recipient_id = ?", filter.RecipientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var escrows []models.EscrowTransaction
	if err := query.Order("id desc").Find(&escrows).Error; err != nil {
		return nil, 0, err
	}
	return escrows, total, nil
}

// TransitionStatus 按期望当前状态推进状态机，返回是否命中。
// 并发下另一个事务先完成迁移时返回 false，调用方按状态冲突处理。
func (r *GormEscrowRepository) TransitionStatus(id uint, fromStatus, toStatus string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ApplyRelease 原子累计放款金额；超出托管余额或状态不再是 funded 时返回 false
func (r *GormEscrowRepository) ApplyRelease(id uint, delta models.Money) (bool, error) {
	result := r.db.Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", id, "funded").
		Where("released_amount + refunded_amount + ? <= amount", delta).
		UpdateColumn("released_amount", gorm.Expr("released_amount + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ApplyRefund 原子累计退款金额；超出托管余额或状态不再是 funded 时返回 false
func (r *GormEscrowRepository) ApplyRefund(id uint, delta models.Money) (bool, error) {
	result := r.db.Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", id, "funded").
		Where("released_amount + refunded_amount + ? <= amount", delta).
		UpdateColumn("refunded_amount", gorm.Expr("refunded_amount + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListExpiredFunded 列出已到期但仍处于 funded 状态的托管交易
func (r *GormEscrowRepository) ListExpiredFunded(now time.Time, limit int) ([]models.EscrowTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var escrows []models.EscrowTransaction
	if err := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", "funded", now).
		Order("expires_at asc").Limit(limit).Find(&escrows).Error; err != nil {
		return nil, err
	}
	return escrows, nil
}
