package service

import (
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PromoAdminService 优惠码与积分奖励后台管理
type PromoAdminService struct {
	promoRepo   repository.PromoCodeRepository
	loyaltyRepo repository.LoyaltyRewardRepository
	userRepo    repository.UserRepository
}

// NewPromoAdminService 创建后台管理服务
func NewPromoAdminService(promoRepo repository.PromoCodeRepository, loyaltyRepo repository.LoyaltyRewardRepository, userRepo repository.UserRepository) *PromoAdminService {
	return &PromoAdminService{
		promoRepo:   promoRepo,
		loyaltyRepo: loyaltyRepo,
		userRepo:    userRepo,
	}
}

// PromoCodeInput 优惠码输入
type PromoCodeInput struct {
	Code                string
	Type                string
	Value               models.Money
	MinPurchase         models.Money
	MaxDiscount         models.Money
	UsageLimit          int
	PerUserLimit        int
	EligibleUserIDs     []string
	EligibleProductIDs  []string
	EligibleCategoryIDs []string
	StartsAt            *time.Time
	EndsAt              *time.Time
	IsActive            *bool
}

// CreatePromoCode 创建优惠码
func (s *PromoAdminService) CreatePromoCode(input PromoCodeInput) (*models.PromoCode, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, ErrPromoInvalid
	}
	if err := validateDiscountType(input.Type, input.Value); err != nil {
		return nil, err
	}
	existing, err := s.promoRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPromoInvalid
	}

	promo := &models.PromoCode{
		Code:                code,
		Type:                strings.ToLower(strings.TrimSpace(input.Type)),
		Value:               input.Value,
		MinPurchase:         input.MinPurchase,
		MaxDiscount:         input.MaxDiscount,
		UsageLimit:          input.UsageLimit,
		PerUserLimit:        input.PerUserLimit,
		EligibleUserIDs:     models.StringArray(input.EligibleUserIDs),
		EligibleProductIDs:  models.StringArray(input.EligibleProductIDs),
		EligibleCategoryIDs: models.StringArray(input.EligibleCategoryIDs),
		StartsAt:            input.StartsAt,
		EndsAt:              input.EndsAt,
		IsActive:            true,
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if err := s.promoRepo.Create(promo); err != nil {
		return nil, err
	}
	return promo, nil
}

// UpdatePromoCode 更新优惠码（已用次数与码值不可改）
func (s *PromoAdminService) UpdatePromoCode(id uint, input PromoCodeInput) (*models.PromoCode, error) {
	promo, err := s.promoRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, ErrPromoNotFound
	}
	if err := validateDiscountType(input.Type, input.Value); err != nil {
		return nil, err
	}

	promo.Type = strings.ToLower(strings.TrimSpace(input.Type))
	promo.Value = input.Value
	promo.MinPurchase = input.MinPurchase
	promo.MaxDiscount = input.MaxDiscount
	promo.UsageLimit = input.UsageLimit
	promo.PerUserLimit = input.PerUserLimit
	promo.EligibleUserIDs = models.StringArray(input.EligibleUserIDs)
	promo.EligibleProductIDs = models.StringArray(input.EligibleProductIDs)
	promo.EligibleCategoryIDs = models.StringArray(input.EligibleCategoryIDs)
	promo.StartsAt = input.StartsAt
	promo.EndsAt = input.EndsAt
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if err := s.promoRepo.Update(promo); err != nil {
		return nil, err
	}
	return promo, nil
}

// DeletePromoCode 删除优惠码
func (s *PromoAdminService) DeletePromoCode(id uint) error {
	promo, err := s.promoRepo.GetByID(id)
	if err != nil {
		return err
	}
	if promo == nil {
		return ErrPromoNotFound
	}
	return s.promoRepo.Delete(id)
}

// ListPromoCodes 分页查询优惠码
func (s *PromoAdminService) ListPromoCodes(filter repository.PromoCodeListFilter) ([]models.PromoCode, int64, error) {
	return s.promoRepo.List(filter)
}

// IssueLoyaltyInput 发放积分奖励输入
type IssueLoyaltyInput struct {
	UserID      uint
	Type        string
	Value       models.Money
	MaxDiscount models.Money
	ExpiresAt   *time.Time
}

// IssueLoyaltyReward 给用户发放一次性积分奖励码
func (s *PromoAdminService) IssueLoyaltyReward(input IssueLoyaltyInput) (*models.LoyaltyReward, error) {
	if input.UserID == 0 {
		return nil, ErrLoyaltyInvalid
	}
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrLoyaltyInvalid
	}
	if err := validateDiscountType(input.Type, input.Value); err != nil {
		return nil, ErrLoyaltyInvalid
	}

	reward := &models.LoyaltyReward{
		Code:        generateBusinessNo("LR"),
		UserID:      input.UserID,
		Type:        strings.ToLower(strings.TrimSpace(input.Type)),
		Value:       input.Value,
		MaxDiscount: input.MaxDiscount,
		ExpiresAt:   input.ExpiresAt,
	}
	if err := s.loyaltyRepo.Create(reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// ListLoyaltyRewards 查询用户的积分奖励
func (s *PromoAdminService) ListLoyaltyRewards(userID uint) ([]models.LoyaltyReward, error) {
	return s.loyaltyRepo.ListByUser(userID)
}

func validateDiscountType(discountType string, value models.Money) error {
	switch strings.ToLower(strings.TrimSpace(discountType)) {
	case constants.DiscountTypeFreeShipping:
		return nil
	case constants.DiscountTypePercentage:
		if value <= 0 || value.Decimal().GreaterThan(hundred) {
			return ErrPromoInvalid
		}
		return nil
	case constants.DiscountTypeFixed:
		if value <= 0 {
			return ErrPromoInvalid
		}
		return nil
	default:
		return ErrPromoInvalid
	}
}
