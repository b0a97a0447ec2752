package repository

import (
	"errors"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付流水数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByIdempotencyKey(key string) (*models.Payment, error)
	GetByProviderRef(providerRef string) (*models.Payment, error)
	ListByOrderID(orderID uint) ([]models.Payment, error)
	ListByEscrowID(escrowID uint) ([]models.Payment, error)
	List(filter PaymentListFilter) ([]models.Payment, int64, error)
	Update(payment *models.Payment) error
	UpdateFields(id uint, fields map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付流水仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付流水
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByID 根据ID获取支付流水
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByIdempotencyKey 根据幂等键获取支付流水
func (r *GormPaymentRepository) GetByIdempotencyKey(key string) (*models.Payment, error) {
	if key == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("idempotency_key = ?", key).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByProviderRef 根据处理器流水号获取支付流水
func (r *GormPaymentRepository) GetByProviderRef(providerRef string) (*models.Payment, error) {
	if providerRef == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := r.db.Where("provider_ref = ?", providerRef).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListByOrderID 获取订单支付流水
func (r *GormPaymentRepository) ListByOrderID(orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("order_id = ?", orderID).Order("id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListByEscrowID 获取托管交易支付流水
func (r *GormPaymentRepository) ListByEscrowID(escrowID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("escrow_id = ?", escrowID).Order("id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// PaymentListFilter 支付流水查询条件
type PaymentListFilter struct {
	OrderID   uint
	EscrowID  uint
	Kind      string
	Processor string
	Status    string
	Page      int
	PageSize  int
}

// List 按条件分页获取支付流水
func (r *GormPaymentRepository) List(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.OrderID > 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.EscrowID > 0 {
		query = query.Where("escrow_id = ?", filter.EscrowID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Processor != "" {
		query = query.Where("processor = ?", filter.Processor)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// Update 更新支付流水
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// UpdateFields 更新指定字段
func (r *GormPaymentRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(fields).Error
}
