package service

import (
	"github.com/expertmarket/settlement/internal/models"

	"github.com/shopspring/decimal"
)

// CommissionService 平台佣金拆分服务
type CommissionService struct {
	defaultRate decimal.Decimal
	maxRate     decimal.Decimal
}

// NewCommissionService 创建佣金服务
func NewCommissionService(defaultRate, maxRate float64) *CommissionService {
	return &CommissionService{
		defaultRate: decimal.NewFromFloat(defaultRate),
		maxRate:     decimal.NewFromFloat(maxRate),
	}
}

// ResolveRate 解析商品生效佣金比例：商品覆盖优先，否则用平台默认，最终按上限收口
func (s *CommissionService) ResolveRate(product *models.Product) decimal.Decimal {
	rate := s.defaultRate
	if product != nil && product.CommissionRate != nil {
		rate = *product.CommissionRate
	}
	if rate.LessThan(decimal.Zero) {
		rate = decimal.Zero
	}
	if s.maxRate.GreaterThan(decimal.Zero) && rate.GreaterThan(s.maxRate) {
		rate = s.maxRate
	}
	return rate
}

// Split 按比例拆分订单项金额
// 佣金四舍五入到分，卖家应得取精确余额，两者之和恒等于拆分基数
func (s *CommissionService) Split(lineTotal models.Money, rate decimal.Decimal) (commission, payout models.Money) {
	if lineTotal <= 0 {
		return 0, 0
	}
	commission = lineTotal.MulRate(rate)
	if commission < 0 {
		commission = 0
	}
	if commission > lineTotal {
		commission = lineTotal
	}
	payout = lineTotal - commission
	return commission, payout
}
