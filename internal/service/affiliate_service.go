package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/cache"
	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/shopspring/decimal"
)

// 推广码字符表，去掉易混淆的 0/O/1/I/l
const affiliateCodeAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"
const affiliateCodeLength = 10

// AffiliateService 推广归因服务
type AffiliateService struct {
	linkRepo       repository.AffiliateLinkRepository
	trackingRepo   repository.AffiliateTrackingRepository
	cookieLifetime time.Duration
	dedupeWindow   time.Duration
	maxRate        decimal.Decimal
}

// NewAffiliateService 创建推广归因服务
func NewAffiliateService(linkRepo repository.AffiliateLinkRepository, trackingRepo repository.AffiliateTrackingRepository, cookieLifetimeDays int, dedupeWindowSeconds int, maxRate float64) *AffiliateService {
	if cookieLifetimeDays <= 0 {
		cookieLifetimeDays = 7
	}
	if dedupeWindowSeconds <= 0 {
		dedupeWindowSeconds = 600
	}
	return &AffiliateService{
		linkRepo:       linkRepo,
		trackingRepo:   trackingRepo,
		cookieLifetime: time.Duration(cookieLifetimeDays) * 24 * time.Hour,
		dedupeWindow:   time.Duration(dedupeWindowSeconds) * time.Second,
		maxRate:        decimal.NewFromFloat(maxRate),
	}
}

// CreateAffiliateLinkInput 创建推广链接输入
type CreateAffiliateLinkInput struct {
	ExpertID       uint
	TargetType     string
	TargetID       uint
	CommissionRate decimal.Decimal
	CustomURL      string
	ExpiresAt      *time.Time
}

// UpdateAffiliateLinkInput 更新推广链接输入
type UpdateAffiliateLinkInput struct {
	CommissionRate *decimal.Decimal
	CustomURL      *string
	ExpiresAt      *time.Time
	IsActive       *bool
}

// AttributionResult 归因结果
type AttributionResult struct {
	LinkID     uint
	TrackingID uint
	ExpertID   uint
	Revenue    models.Money
	Commission models.Money
}

// CreateLink 创建推广链接
func (s *AffiliateService) CreateLink(input CreateAffiliateLinkInput) (*models.AffiliateLink, error) {
	if input.ExpertID == 0 {
		return nil, ErrForbidden
	}
	targetType := strings.ToLower(strings.TrimSpace(input.TargetType))
	switch targetType {
	case constants.AffiliateTargetProduct, constants.AffiliateTargetExpert:
		if input.TargetID == 0 {
			return nil, ErrAffiliateLinkNotFound
		}
	case constants.AffiliateTargetBundle:
	default:
		return nil, ErrAffiliateLinkNotFound
	}
	if err := s.validateRate(input.CommissionRate); err != nil {
		return nil, err
	}

	link := &models.AffiliateLink{
		Code:           generateAffiliateCode(),
		ExpertID:       input.ExpertID,
		TargetType:     targetType,
		TargetID:       input.TargetID,
		CommissionRate: input.CommissionRate,
		CustomURL:      strings.TrimSpace(input.CustomURL),
		ExpiresAt:      input.ExpiresAt,
		IsActive:       true,
	}
	if err := s.linkRepo.Create(link); err != nil {
		return nil, err
	}
	return link, nil
}

// UpdateLink 更新推广链接（仅属主）
func (s *AffiliateService) UpdateLink(expertID, linkID uint, input UpdateAffiliateLinkInput) (*models.AffiliateLink, error) {
	link, err := s.ownedLink(expertID, linkID)
	if err != nil {
		return nil, err
	}
	if input.CommissionRate != nil {
		if err := s.validateRate(*input.CommissionRate); err != nil {
			return nil, err
		}
		link.CommissionRate = *input.CommissionRate
	}
	if input.CustomURL != nil {
		link.CustomURL = strings.TrimSpace(*input.CustomURL)
	}
	if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if err := s.linkRepo.Update(link); err != nil {
		return nil, err
	}
	return link, nil
}

// DeleteLink 删除推广链接（仅属主）
func (s *AffiliateService) DeleteLink(expertID, linkID uint) error {
	if _, err := s.ownedLink(expertID, linkID); err != nil {
		return err
	}
	return s.linkRepo.Delete(linkID)
}

// GetLink 查询推广链接（仅属主）
func (s *AffiliateService) GetLink(expertID, linkID uint) (*models.AffiliateLink, error) {
	return s.ownedLink(expertID, linkID)
}

// ListLinks 分页查询推广链接
func (s *AffiliateService) ListLinks(filter repository.AffiliateLinkListFilter) ([]models.AffiliateLink, int64, error) {
	return s.linkRepo.List(filter)
}

// TrackClick 记录一次推广点击
// 去重窗口内同一会话的重复点击只计一次
func (s *AffiliateService) TrackClick(ctx context.Context, code, sessionID, clientIP string) (*models.AffiliateLink, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.TrimSpace(sessionID) == "" {
		return nil, ErrAffiliateLinkNotFound
	}
	link, err := s.linkRepo.GetByCode(trimmed)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrAffiliateLinkNotFound
	}
	now := time.Now()
	if !link.IsActive || (link.ExpiresAt != nil && now.After(*link.ExpiresAt)) {
		return nil, ErrAffiliateLinkInactive
	}

	fresh, err := cache.ReserveClick(ctx, link.ID, sessionID, s.dedupeWindow)
	if err != nil {
		logger.Warnw("affiliate_click_dedupe_failed", "link_id", link.ID, "error", err)
		fresh = true
	}
	if !fresh {
		return link, nil
	}

	tracking, err := s.trackingRepo.GetBySessionAndLink(sessionID, link.ID)
	if err != nil {
		return nil, err
	}
	if tracking != nil && !tracking.Converted {
		if err := s.trackingRepo.RecordClick(tracking.ID, now); err != nil {
			return nil, err
		}
	} else {
		if err := s.trackingRepo.Create(&models.AffiliateTracking{
			LinkID:       link.ID,
			SessionID:    strings.TrimSpace(sessionID),
			IPHash:       hashClientIP(clientIP),
			FirstClickAt: now,
			LastClickAt:  now,
			ClickCount:   1,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.linkRepo.IncrementClicks(link.ID); err != nil {
		logger.Warnw("affiliate_click_count_failed", "link_id", link.ID, "error", err)
	}
	return link, nil
}

// AssociateSession 登录后把会话期间的点击绑定到用户
func (s *AffiliateService) AssociateSession(sessionID string, userID uint) error {
	if strings.TrimSpace(sessionID) == "" || userID == 0 {
		return nil
	}
	_, err := s.trackingRepo.AssociateUser(strings.TrimSpace(sessionID), userID)
	return err
}

// ResolveAttribution 订单归因（最近点击优先）
// 窗口内无可归因点击不是错误，返回 (nil, nil)；转化标记首写生效，重复结算天然幂等
func (s *AffiliateService) ResolveAttribution(order *models.Order, sessionID string, now time.Time) (*AttributionResult, error) {
	if order == nil || len(order.Items) == 0 {
		return nil, nil
	}
	var userID *uint
	if order.UserID != 0 {
		uid := order.UserID
		userID = &uid
	}
	since := now.Add(-s.cookieLifetime)
	candidates, err := s.trackingRepo.ListCandidates(strings.TrimSpace(sessionID), userID, since)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		tracking := candidates[i]
		link, err := s.linkRepo.GetByID(tracking.LinkID)
		if err != nil {
			return nil, err
		}
		if link == nil || !link.IsActive {
			continue
		}
		// 买家不能给自己带来的成交计佣
		if link.ExpertID == order.UserID {
			continue
		}
		revenue := attributableRevenue(link, order)
		if revenue <= 0 {
			continue
		}
		commission := revenue.MulRate(link.CommissionRate)

		converted, err := s.trackingRepo.MarkConverted(tracking.ID, order.ID, revenue, commission)
		if err != nil {
			return nil, err
		}
		if !converted {
			// 候选被抢先标记。若抢先方转化的就是本订单，直接收手，
			// 防止并发结算各自转化不同候选造成重复计佣
			claimed, err := s.trackingRepo.HasConversionForOrder(order.ID)
			if err != nil {
				return nil, err
			}
			if claimed {
				return nil, nil
			}
			continue
		}
		if err := s.linkRepo.ApplyConversion(link.ID, revenue, commission); err != nil {
			return nil, err
		}
		return &AttributionResult{
			LinkID:     link.ID,
			TrackingID: tracking.ID,
			ExpertID:   link.ExpertID,
			Revenue:    revenue,
			Commission: commission,
		}, nil
	}
	return nil, nil
}

// Earnings 推广收益汇总
func (s *AffiliateService) Earnings(expertID uint) (*repository.AffiliateEarnings, error) {
	if expertID == 0 {
		return nil, ErrForbidden
	}
	return s.linkRepo.EarningsSummary(expertID)
}

func (s *AffiliateService) ownedLink(expertID, linkID uint) (*models.AffiliateLink, error) {
	if linkID == 0 {
		return nil, ErrAffiliateLinkNotFound
	}
	link, err := s.linkRepo.GetByID(linkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrAffiliateLinkNotFound
	}
	if expertID != 0 && link.ExpertID != expertID {
		return nil, ErrForbidden
	}
	return link, nil
}

func (s *AffiliateService) validateRate(rate decimal.Decimal) error {
	if rate.LessThanOrEqual(decimal.Zero) {
		return ErrAffiliateRateInvalid
	}
	if s.maxRate.GreaterThan(decimal.Zero) && rate.GreaterThan(s.maxRate) {
		return ErrAffiliateRateInvalid
	}
	return nil
}

// attributableRevenue 按推广目标圈定参与计佣的成交金额
func attributableRevenue(link *models.AffiliateLink, order *models.Order) models.Money {
	var revenue models.Money
	switch link.TargetType {
	case constants.AffiliateTargetProduct:
		for _, item := range order.Items {
			if item.ProductID == link.TargetID {
				revenue += item.TotalPrice
			}
		}
	case constants.AffiliateTargetExpert:
		for _, item := range order.Items {
			if item.ExpertID == link.TargetID {
				revenue += item.TotalPrice
			}
		}
	case constants.AffiliateTargetBundle:
		for _, item := range order.Items {
			revenue += item.TotalPrice
		}
	}
	return revenue
}

func generateAffiliateCode() string {
	max := big.NewInt(int64(len(affiliateCodeAlphabet)))
	buf := make([]byte, affiliateCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = affiliateCodeAlphabet[0]
			continue
		}
		buf[i] = affiliateCodeAlphabet[n.Int64()]
	}
	return string(buf)
}

func hashClientIP(ip string) string {
	trimmed := strings.TrimSpace(ip)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}
