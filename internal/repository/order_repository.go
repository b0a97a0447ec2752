package repository

import (
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByIDWithItems(id uint) (*models.Order, error)
	GetByOrderNo(orderNo string) (*models.Order, error)
	Update(order *models.Order) error
	UpdateFields(id uint, fields map[string]interface{}) error
	UpdateStatusCAS(id uint, fromStatus, toStatus string, extra map[string]interface{}) (bool, error)
	MarkSettled(id uint) (bool, error)
	MarkDigitalItemsDelivered(orderID uint, at time.Time) error
	List(filter OrderListFilter) ([]models.Order, int64, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单（级联写入订单项与优惠明细）
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID 根据ID获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDWithItems 根据ID获取订单（含订单项与优惠明细）
func (r *GormOrderRepository) GetByIDWithItems(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").Preload("Discounts").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据订单编号获取订单
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").Preload("Discounts").
		Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// Update 更新订单
func (r *GormOrderRepository) Update(order *models.Order) error {
	return r.db.Save(order).Error
}

// UpdateFields 更新指定字段
func (r *GormOrderRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateStatusCAS 按期望当前状态更新订单状态，返回是否命中
func (r *GormOrderRepository) UpdateStatusCAS(id uint, fromStatus, toStatus string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkSettled 标记结算入账完成（幂等：仅第一次生效）
func (r *GormOrderRepository) MarkSettled(id uint) (bool, error) {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND settled_at IS NULL", id).
		UpdateColumn("settled_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkDigitalItemsDelivered 给订单内未交付的数字商品项落交付时间（幂等）
func (r *GormOrderRepository) MarkDigitalItemsDelivered(orderID uint, at time.Time) error {
	return r.db.Model(&models.OrderItem{}).
		Where("order_id = ? AND is_digital = ? AND delivered_at IS NULL", orderID, true).
		UpdateColumn("delivered_at", at).Error
}

// List 获取订单列表
func (r *GormOrderRepository) List(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})

	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.OrderNo != "" {
		query = query.Where("order_no = ?", filter.OrderNo)
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

	var orders []models.Order
	if err := query.Preload("Items").Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
