package public

import (
	"strconv"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateAffiliateLinkRequest 创建推广链接请求
type CreateAffiliateLinkRequest struct {
	TargetType     string  `json:"target_type" binding:"required"`
	TargetID       uint    `json:"target_id"`
	CommissionRate float64 `json:"commission_rate" binding:"required"`
	CustomURL      string  `json:"custom_url"`
	ExpiresAt      string  `json:"expires_at"`
}

// UpdateAffiliateLinkRequest 更新推广链接请求
type UpdateAffiliateLinkRequest struct {
	CommissionRate *float64 `json:"commission_rate"`
	CustomURL      *string  `json:"custom_url"`
	ExpiresAt      *string  `json:"expires_at"`
	IsActive       *bool    `json:"is_active"`
}

// TrackClickRequest 推广点击上报请求
type TrackClickRequest struct {
	Code string `json:"code" binding:"required"`
}

// CreateAffiliateLink 创建推广链接（专家）
func (h *Handler) CreateAffiliateLink(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateAffiliateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	expiresAt, err := parseTimeNullable(req.ExpiresAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid expires_at", err)
		return
	}

	link, err := h.AffiliateService.CreateLink(service.CreateAffiliateLinkInput{
		ExpertID:       uid,
		TargetType:     req.TargetType,
		TargetID:       req.TargetID,
		CommissionRate: decimal.NewFromFloat(req.CommissionRate),
		CustomURL:      req.CustomURL,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, link)
}

// UpdateAffiliateLink 更新推广链接（仅属主）
func (h *Handler) UpdateAffiliateLink(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	linkID, ok := parseLinkID(c)
	if !ok {
		return
	}
	var req UpdateAffiliateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	input := service.UpdateAffiliateLinkInput{
		CustomURL: req.CustomURL,
		IsActive:  req.IsActive,
	}
	if req.CommissionRate != nil {
		rate := decimal.NewFromFloat(*req.CommissionRate)
		input.CommissionRate = &rate
	}
	if req.ExpiresAt != nil {
		expiresAt, err := parseTimeNullable(*req.ExpiresAt)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid expires_at", err)
			return
		}
		input.ExpiresAt = expiresAt
	}

	link, err := h.AffiliateService.UpdateLink(uid, linkID, input)
	if err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, link)
}

// DeleteAffiliateLink 删除推广链接（仅属主）
func (h *Handler) DeleteAffiliateLink(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	linkID, ok := parseLinkID(c)
	if !ok {
		return
	}
	if err := h.AffiliateService.DeleteLink(uid, linkID); err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, nil)
}

// GetAffiliateLink 查询推广链接（仅属主）
func (h *Handler) GetAffiliateLink(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	linkID, ok := parseLinkID(c)
	if !ok {
		return
	}
	link, err := h.AffiliateService.GetLink(uid, linkID)
	if err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, link)
}

// ListAffiliateLinks 查询当前专家的推广链接
func (h *Handler) ListAffiliateLinks(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	links, total, err := h.AffiliateService.ListLinks(repository.AffiliateLinkListFilter{
		Page:       page,
		PageSize:   pageSize,
		ExpertID:   uid,
		TargetType: strings.TrimSpace(c.Query("target_type")),
		OnlyActive: c.Query("only_active") == "true",
	})
	if err != nil {
		respondError(c, response.CodeInternal, "affiliate link list failed", err)
		return
	}
	response.SuccessWithPage(c, links, buildPagination(page, pageSize, total))
}

// TrackAffiliateClick 记录推广点击（公开接口，免登录）
func (h *Handler) TrackAffiliateClick(c *gin.Context) {
	var req TrackClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	sessionID := getSessionID(c)
	if sessionID == "" {
		respondError(c, response.CodeBadRequest, "session id is required", nil)
		return
	}

	link, err := h.AffiliateService.TrackClick(c.Request.Context(), req.Code, sessionID, c.ClientIP())
	if err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":       link.Code,
		"custom_url": link.CustomURL,
	})
}

// AssociateAffiliateSession 登录后绑定会话内的推广点击
func (h *Handler) AssociateAffiliateSession(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	sessionID := getSessionID(c)
	if sessionID == "" {
		response.Success(c, nil)
		return
	}
	if err := h.AffiliateService.AssociateSession(sessionID, uid); err != nil {
		respondError(c, response.CodeInternal, "affiliate session bind failed", err)
		return
	}
	response.Success(c, nil)
}

// GetAffiliateEarnings 查询推广收益汇总
func (h *Handler) GetAffiliateEarnings(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	earnings, err := h.AffiliateService.Earnings(uid)
	if err != nil {
		respondAffiliateError(c, err)
		return
	}
	response.Success(c, earnings)
}

func parseLinkID(c *gin.Context) (uint, bool) {
	linkID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || linkID == 0 {
		respondError(c, response.CodeBadRequest, "invalid link id", err)
		return 0, false
	}
	return uint(linkID), true
}
