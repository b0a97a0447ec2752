package admin

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PromoCodeRequest 优惠码创建/更新请求
// Value 为展示单位：percentage 填百分比数值（15 表示 85 折），fixed 填金额
type PromoCodeRequest struct {
	Code                string   `json:"code" binding:"required"`
	Type                string   `json:"type" binding:"required"`
	Value               float64  `json:"value"`
	MinPurchase         float64  `json:"min_purchase"`
	MaxDiscount         float64  `json:"max_discount"`
	UsageLimit          int      `json:"usage_limit"`
	PerUserLimit        int      `json:"per_user_limit"`
	EligibleUserIDs     []string `json:"eligible_user_ids"`
	EligibleProductIDs  []string `json:"eligible_product_ids"`
	EligibleCategoryIDs []string `json:"eligible_category_ids"`
	StartsAt            string   `json:"starts_at"`
	EndsAt              string   `json:"ends_at"`
	IsActive            *bool    `json:"is_active"`
}

// IssueLoyaltyRequest 发放积分奖励请求
type IssueLoyaltyRequest struct {
	UserID      uint    `json:"user_id" binding:"required"`
	Type        string  `json:"type" binding:"required"`
	Value       float64 `json:"value"`
	MaxDiscount float64 `json:"max_discount"`
	ExpiresAt   string  `json:"expires_at"`
}

// CreatePromoCode 创建优惠码
func (h *Handler) CreatePromoCode(c *gin.Context) {
	var req PromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	input, err := buildPromoCodeInput(req)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	promo, err := h.PromoAdminService.CreatePromoCode(input)
	if err != nil {
		respondPromoAdminError(c, err, "promo code create failed")
		return
	}
	response.Success(c, promo)
}

// UpdatePromoCode 更新优惠码
func (h *Handler) UpdatePromoCode(c *gin.Context) {
	promoID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || promoID == 0 {
		respondError(c, response.CodeBadRequest, "invalid promo code id", err)
		return
	}
	var req PromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	input, err := buildPromoCodeInput(req)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	promo, err := h.PromoAdminService.UpdatePromoCode(uint(promoID), input)
	if err != nil {
		respondPromoAdminError(c, err, "promo code update failed")
		return
	}
	response.Success(c, promo)
}

// DeletePromoCode 删除优惠码
func (h *Handler) DeletePromoCode(c *gin.Context) {
	promoID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || promoID == 0 {
		respondError(c, response.CodeBadRequest, "invalid promo code id", err)
		return
	}
	if err := h.PromoAdminService.DeletePromoCode(uint(promoID)); err != nil {
		respondPromoAdminError(c, err, "promo code delete failed")
		return
	}
	response.Success(c, nil)
}

// ListPromoCodes 查询优惠码列表
func (h *Handler) ListPromoCodes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := repository.PromoCodeListFilter{
		Code:     strings.TrimSpace(c.Query("code")),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	promos, total, err := h.PromoAdminService.ListPromoCodes(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "promo code list failed", err)
		return
	}
	response.SuccessWithPage(c, promos, buildPagination(page, pageSize, total))
}

// IssueLoyaltyReward 给用户发放一次性积分奖励码
func (h *Handler) IssueLoyaltyReward(c *gin.Context) {
	var req IssueLoyaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	expiresAt, err := parseTimeNullable(req.ExpiresAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid expires_at", err)
		return
	}

	reward, err := h.PromoAdminService.IssueLoyaltyReward(service.IssueLoyaltyInput{
		UserID:      req.UserID,
		Type:        req.Type,
		Value:       models.NewMoneyFromDecimal(decimal.NewFromFloat(req.Value)),
		MaxDiscount: models.NewMoneyFromDecimal(decimal.NewFromFloat(req.MaxDiscount)),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		respondPromoAdminError(c, err, "loyalty reward issue failed")
		return
	}
	response.Success(c, reward)
}

// ListLoyaltyRewards 查询指定用户的积分奖励
func (h *Handler) ListLoyaltyRewards(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(c, response.CodeBadRequest, "invalid user id", err)
		return
	}
	rewards, err := h.PromoAdminService.ListLoyaltyRewards(uint(userID))
	if err != nil {
		respondError(c, response.CodeInternal, "loyalty reward list failed", err)
		return
	}
	response.Success(c, rewards)
}

func buildPromoCodeInput(req PromoCodeRequest) (service.PromoCodeInput, error) {
	startsAt, err := parseTimeNullable(req.StartsAt)
	if err != nil {
		return service.PromoCodeInput{}, err
	}
	endsAt, err := parseTimeNullable(req.EndsAt)
	if err != nil {
		return service.PromoCodeInput{}, err
	}
	return service.PromoCodeInput{
		Code:                req.Code,
		Type:                req.Type,
		Value:               models.NewMoneyFromDecimal(decimal.NewFromFloat(req.Value)),
		MinPurchase:         models.NewMoneyFromDecimal(decimal.NewFromFloat(req.MinPurchase)),
		MaxDiscount:         models.NewMoneyFromDecimal(decimal.NewFromFloat(req.MaxDiscount)),
		UsageLimit:          req.UsageLimit,
		PerUserLimit:        req.PerUserLimit,
		EligibleUserIDs:     req.EligibleUserIDs,
		EligibleProductIDs:  req.EligibleProductIDs,
		EligibleCategoryIDs: req.EligibleCategoryIDs,
		StartsAt:            startsAt,
		EndsAt:              endsAt,
		IsActive:            req.IsActive,
	}, nil
}

func respondPromoAdminError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrPromoInvalid):
		respondError(c, response.CodeBadRequest, "promo code invalid", nil)
	case errors.Is(err, service.ErrPromoNotFound):
		respondError(c, response.CodeNotFound, "promo code not found", nil)
	case errors.Is(err, service.ErrLoyaltyInvalid):
		respondError(c, response.CodeBadRequest, "loyalty reward invalid", nil)
	case errors.Is(err, service.ErrForbidden):
		respondError(c, response.CodeForbidden, "operation not allowed", nil)
	default:
		respondError(c, response.CodeInternal, fallback, err)
	}
}

func parseTimeNullable(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func buildPagination(page, pageSize int, total int64) response.Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPage++
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
