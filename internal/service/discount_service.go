package service

import (
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/shopspring/decimal"
)

// DiscountService 优惠计算服务
type DiscountService struct {
	promoRepo   repository.PromoCodeRepository
	usageRepo   repository.PromoCodeUsageRepository
	loyaltyRepo repository.LoyaltyRewardRepository
}

// NewDiscountService 创建优惠计算服务
func NewDiscountService(promoRepo repository.PromoCodeRepository, usageRepo repository.PromoCodeUsageRepository, loyaltyRepo repository.LoyaltyRewardRepository) *DiscountService {
	return &DiscountService{
		promoRepo:   promoRepo,
		usageRepo:   usageRepo,
		loyaltyRepo: loyaltyRepo,
	}
}

// DiscountLine 一条已计算的优惠明细
type DiscountLine struct {
	Code                 string
	Type                 string
	Value                models.Money
	Amount               models.Money
	OriginalShippingCost models.Money
	FreeShipping         bool
	PromoCodeID          *uint
	LoyaltyRewardID      *uint
}

// ApplyPromoInput 优惠码校验输入
type ApplyPromoInput struct {
	Code         string
	UserID       uint
	Items        []models.OrderItem
	Products     map[uint]*models.Product
	Subtotal     models.Money
	ShippingCost models.Money
}

// ApplyPromo 校验优惠码并计算优惠明细
// 只做计算，不占用额度；额度在下单事务内通过 ReserveUsage 原子占用
func (s *DiscountService) ApplyPromo(input ApplyPromoInput) (*DiscountLine, *models.PromoCode, error) {
	trimmed := strings.TrimSpace(input.Code)
	if trimmed == "" {
		return nil, nil, ErrPromoInvalid
	}

	promo, err := s.promoRepo.GetByCode(trimmed)
	if err != nil {
		return nil, nil, err
	}
	if promo == nil {
		return nil, nil, ErrPromoNotFound
	}
	if !promo.IsActive {
		return nil, promo, ErrPromoInactive
	}

	now := time.Now()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, promo, ErrPromoNotStarted
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, promo, ErrPromoExpired
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return nil, promo, ErrPromoUsageLimit
	}
	if promo.PerUserLimit > 0 && input.UserID != 0 {
		count, err := s.usageRepo.CountByUser(promo.ID, input.UserID)
		if err != nil {
			return nil, promo, err
		}
		if int(count) >= promo.PerUserLimit {
			return nil, promo, ErrPromoPerUserLimit
		}
	}
	if !userEligible(promo, input.UserID) {
		return nil, promo, ErrPromoNotEligible
	}

	eligibleSubtotal := s.resolveEligibleSubtotal(promo, input.Items, input.Products)
	if eligibleSubtotal <= 0 {
		return nil, promo, ErrPromoNotEligible
	}
	if eligibleSubtotal < promo.MinPurchase {
		return nil, promo, ErrPromoMinPurchase
	}

	line := &DiscountLine{
		Code:        promo.Code,
		Type:        strings.ToLower(strings.TrimSpace(promo.Type)),
		Value:       promo.Value,
		PromoCodeID: &promo.ID,
	}
	switch line.Type {
	case constants.DiscountTypeFreeShipping:
		line.FreeShipping = true
		line.OriginalShippingCost = input.ShippingCost
		line.Amount = 0
	case constants.DiscountTypePercentage, constants.DiscountTypeFixed:
		amount, err := calculateDiscountAmount(line.Type, promo.Value, eligibleSubtotal)
		if err != nil {
			return nil, promo, err
		}
		amount = capDiscount(amount, promo.MaxDiscount, eligibleSubtotal)
		line.Amount = amount
	default:
		return nil, promo, ErrPromoInvalid
	}
	return line, promo, nil
}

// ApplyLoyalty 校验积分奖励码并计算优惠明细
// 此处只校验可用性，实际核销在支付成功后的结算阶段执行
func (s *DiscountService) ApplyLoyalty(code string, userID uint, subtotal models.Money) (*DiscountLine, *models.LoyaltyReward, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, nil, ErrLoyaltyInvalid
	}

	reward, err := s.loyaltyRepo.GetByCode(trimmed)
	if err != nil {
		return nil, nil, err
	}
	if reward == nil {
		return nil, nil, ErrLoyaltyNotFound
	}
	if reward.UserID != userID {
		return nil, reward, ErrForbidden
	}
	if reward.Consumed {
		return nil, reward, ErrLoyaltyConsumed
	}
	if reward.ExpiresAt != nil && time.Now().After(*reward.ExpiresAt) {
		return nil, reward, ErrLoyaltyExpired
	}

	rewardType := strings.ToLower(strings.TrimSpace(reward.Type))
	amount, err := calculateDiscountAmount(rewardType, reward.Value, subtotal)
	if err != nil {
		return nil, reward, ErrLoyaltyInvalid
	}
	amount = capDiscount(amount, reward.MaxDiscount, subtotal)
	return &DiscountLine{
		Code:            reward.Code,
		Type:            constants.DiscountTypeLoyalty,
		Value:           reward.Value,
		Amount:          amount,
		LoyaltyRewardID: &reward.ID,
	}, reward, nil
}

// resolveEligibleSubtotal 根据商品/分类适用范围计算可参与优惠的小计
func (s *DiscountService) resolveEligibleSubtotal(promo *models.PromoCode, items []models.OrderItem, products map[uint]*models.Product) models.Money {
	productIDs := toIDSet(promo.EligibleProductIDs)
	categoryIDs := toIDSet(promo.EligibleCategoryIDs)
	if len(productIDs) == 0 && len(categoryIDs) == 0 {
		var total models.Money
		for _, item := range items {
			total += item.TotalPrice
		}
		return total
	}

	var eligible models.Money
	for _, item := range items {
		if _, ok := productIDs[item.ProductID]; ok {
			eligible += item.TotalPrice
			continue
		}
		if len(categoryIDs) > 0 && products != nil {
			if product, ok := products[item.ProductID]; ok && product != nil {
				if _, ok := categoryIDs[product.CategoryID]; ok {
					eligible += item.TotalPrice
				}
			}
		}
	}
	return eligible
}

func userEligible(promo *models.PromoCode, userID uint) bool {
	ids := toIDSet(promo.EligibleUserIDs)
	if len(ids) == 0 {
		return true
	}
	_, ok := ids[userID]
	return ok
}

func calculateDiscountAmount(discountType string, value models.Money, base models.Money) (models.Money, error) {
	switch discountType {
	case constants.DiscountTypeFixed, constants.DiscountTypeLoyalty:
		if value <= 0 {
			return 0, ErrPromoInvalid
		}
		return value, nil
	case constants.DiscountTypePercentage:
		if value <= 0 {
			return 0, ErrPromoInvalid
		}
		// Value 为百分比数值，15 表示 85 折
		percent := value.Decimal().Div(decimal.NewFromInt(100))
		return base.MulRate(percent), nil
	default:
		return 0, ErrPromoInvalid
	}
}

// capDiscount 优惠封顶：不超过 max_discount（如设置），也不超过参与金额
func capDiscount(amount, maxDiscount, base models.Money) models.Money {
	if maxDiscount > 0 && amount > maxDiscount {
		amount = maxDiscount
	}
	if amount > base {
		amount = base
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func toIDSet(raw models.StringArray) map[uint]struct{} {
	result := make(map[uint]struct{}, len(raw))
	for _, s := range raw {
		id := parseUint(s)
		if id == 0 {
			continue
		}
		result[id] = struct{}{}
	}
	return result
}

func parseUint(s string) uint {
	var id uint
	for _, ch := range strings.TrimSpace(s) {
		if ch < '0' || ch > '9' {
			return 0
		}
		id = id*10 + uint(ch-'0')
	}
	return id
}
