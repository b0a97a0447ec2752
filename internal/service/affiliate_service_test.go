package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupAffiliateServiceTest(t *testing.T) (*AffiliateService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:affiliate_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.AffiliateLink{},
		&models.AffiliateTracking{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	linkRepo := repository.NewAffiliateLinkRepository(db)
	trackingRepo := repository.NewAffiliateTrackingRepository(db)
	return NewAffiliateService(linkRepo, trackingRepo, 7, 600, 0.5), db
}

func seedLink(t *testing.T, svc *AffiliateService, expertID uint, targetType string, targetID uint) *models.AffiliateLink {
	t.Helper()
	link, err := svc.CreateLink(CreateAffiliateLinkInput{
		ExpertID:       expertID,
		TargetType:     targetType,
		TargetID:       targetID,
		CommissionRate: decimal.NewFromFloat(0.1),
	})
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	return link
}

func seedTracking(t *testing.T, db *gorm.DB, linkID uint, sessionID string, userID *uint, lastClick time.Time) *models.AffiliateTracking {
	t.Helper()
	tracking := &models.AffiliateTracking{
		LinkID:       linkID,
		SessionID:    sessionID,
		UserID:       userID,
		FirstClickAt: lastClick,
		LastClickAt:  lastClick,
		ClickCount:   1,
	}
	if err := db.Create(tracking).Error; err != nil {
		t.Fatalf("create tracking failed: %v", err)
	}
	return tracking
}

func attributionOrder(userID uint, items ...models.OrderItem) *models.Order {
	return &models.Order{ID: 42, UserID: userID, Items: items}
}

func TestCreateLinkRateCap(t *testing.T) {
	svc, _ := setupAffiliateServiceTest(t)
	if _, err := svc.CreateLink(CreateAffiliateLinkInput{
		ExpertID:       5,
		TargetType:     constants.AffiliateTargetProduct,
		TargetID:       1,
		CommissionRate: decimal.NewFromFloat(0.6),
	}); !errors.Is(err, ErrAffiliateRateInvalid) {
		t.Fatalf("rate above cap must be rejected, got %v", err)
	}
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 1)
	if len(link.Code) != affiliateCodeLength {
		t.Fatalf("unexpected code length: %q", link.Code)
	}
}

func TestTrackClickCreatesAndAccumulates(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 1)

	for i := 0; i < 2; i++ {
		if _, err := svc.TrackClick(context.Background(), link.Code, "sess-1", "203.0.113.9"); err != nil {
			t.Fatalf("track click failed: %v", err)
		}
	}

	var tracking models.AffiliateTracking
	if err := db.Where("link_id = ? AND session_id = ?", link.ID, "sess-1").First(&tracking).Error; err != nil {
		t.Fatalf("load tracking failed: %v", err)
	}
	// 缓存未启用时去重放行，两次点击都会累计
	if tracking.ClickCount != 2 {
		t.Fatalf("expected 2 clicks, got %d", tracking.ClickCount)
	}
	if tracking.IPHash == "" || len(tracking.IPHash) != 64 {
		t.Fatalf("ip must be stored hashed, got %q", tracking.IPHash)
	}

	var reloaded models.AffiliateLink
	if err := db.First(&reloaded, link.ID).Error; err != nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if reloaded.ClickCount != 2 {
		t.Fatalf("expected link click count 2, got %d", reloaded.ClickCount)
	}
}

func TestTrackClickInactiveLink(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 1)
	if err := db.Model(&models.AffiliateLink{}).Where("id = ?", link.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate link failed: %v", err)
	}
	if _, err := svc.TrackClick(context.Background(), link.Code, "sess-2", ""); !errors.Is(err, ErrAffiliateLinkInactive) {
		t.Fatalf("expected inactive error, got %v", err)
	}
}

func TestResolveAttributionLastClickWins(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	older := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)
	newer := seedLink(t, svc, 6, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	seedTracking(t, db, older.ID, "sess-a", nil, now.Add(-48*time.Hour))
	seedTracking(t, db, newer.ID, "sess-a", nil, now.Add(-2*time.Hour))

	order := attributionOrder(1, models.OrderItem{ProductID: 10, ExpertID: 5, TotalPrice: models.NewMoneyFromCents(10000)})
	result, err := svc.ResolveAttribution(order, "sess-a", now)
	if err != nil {
		t.Fatalf("resolve attribution failed: %v", err)
	}
	if result == nil {
		t.Fatalf("expected attribution")
	}
	if result.LinkID != newer.ID {
		t.Fatalf("last click must win: expected link %d, got %d", newer.ID, result.LinkID)
	}
	if result.Commission.Cents() != 1000 {
		t.Fatalf("expected commission 1000, got %d", result.Commission.Cents())
	}
}

func TestResolveAttributionOutsideWindowIsMiss(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	// 8 天前的点击超出 7 天归因窗口
	seedTracking(t, db, link.ID, "sess-old", nil, now.Add(-8*24*time.Hour))

	order := attributionOrder(1, models.OrderItem{ProductID: 10, ExpertID: 5, TotalPrice: models.NewMoneyFromCents(10000)})
	result, err := svc.ResolveAttribution(order, "sess-old", now)
	if err != nil {
		t.Fatalf("attribution miss must not be an error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected miss, got attribution to link %d", result.LinkID)
	}
}

func TestResolveAttributionIdempotentFirstWriterWins(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	seedTracking(t, db, link.ID, "sess-b", nil, now.Add(-time.Hour))
	order := attributionOrder(1, models.OrderItem{ProductID: 10, ExpertID: 5, TotalPrice: models.NewMoneyFromCents(5000)})

	first, err := svc.ResolveAttribution(order, "sess-b", now)
	if err != nil || first == nil {
		t.Fatalf("first attribution failed: %v %v", first, err)
	}
	second, err := svc.ResolveAttribution(order, "sess-b", now)
	if err != nil {
		t.Fatalf("second attribution errored: %v", err)
	}
	if second != nil {
		t.Fatalf("converted tracking must not attribute twice")
	}

	var reloaded models.AffiliateLink
	if err := db.First(&reloaded, link.ID).Error; err != nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if reloaded.ConversionCount != 1 {
		t.Fatalf("expected exactly one conversion, got %d", reloaded.ConversionCount)
	}
}

func TestResolveAttributionSingleConversionPerOrder(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	newer := seedLink(t, svc, 6, constants.AffiliateTargetProduct, 10)
	older := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	newest := seedTracking(t, db, newer.ID, "sess-dup", nil, now.Add(-time.Hour))
	seedTracking(t, db, older.ID, "sess-dup", nil, now.Add(-2*time.Hour))
	order := attributionOrder(1, models.OrderItem{ProductID: 10, ExpertID: 7, TotalPrice: models.NewMoneyFromCents(5000)})

	// 模拟并发结算：首选候选已被另一次结算以同一订单转化
	if err := db.Model(&models.AffiliateTracking{}).Where("id = ?", newest.ID).Updates(map[string]interface{}{
		"converted":          true,
		"converted_order_id": order.ID,
	}).Error; err != nil {
		t.Fatalf("preconvert tracking failed: %v", err)
	}

	result, err := svc.ResolveAttribution(order, "sess-dup", now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result != nil {
		t.Fatalf("order already attributed, must not convert a second candidate")
	}

	var converted int64
	if err := db.Model(&models.AffiliateTracking{}).
		Where("converted = ? AND converted_order_id = ?", true, order.ID).
		Count(&converted).Error; err != nil {
		t.Fatalf("count conversions failed: %v", err)
	}
	if converted != 1 {
		t.Fatalf("expected exactly one conversion for the order, got %d", converted)
	}

	var reloadedOlder models.AffiliateLink
	if err := db.First(&reloadedOlder, older.ID).Error; err != nil {
		t.Fatalf("reload link failed: %v", err)
	}
	if reloadedOlder.ConversionCount != 0 {
		t.Fatalf("runner-up link must not be credited, got %d conversions", reloadedOlder.ConversionCount)
	}
}

func TestResolveAttributionSkipsSelfReferral(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	seedTracking(t, db, link.ID, "sess-self", nil, now.Add(-time.Hour))
	// 买家就是链接属主
	order := attributionOrder(5, models.OrderItem{ProductID: 10, ExpertID: 5, TotalPrice: models.NewMoneyFromCents(5000)})
	result, err := svc.ResolveAttribution(order, "sess-self", now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result != nil {
		t.Fatalf("self referral must not earn commission")
	}
}

func TestResolveAttributionTargetScoping(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	productLink := seedLink(t, svc, 5, constants.AffiliateTargetProduct, 10)

	now := time.Now()
	seedTracking(t, db, productLink.ID, "sess-scope", nil, now.Add(-time.Hour))

	// 订单里只有别的商品，product 链接不匹配
	order := attributionOrder(1, models.OrderItem{ProductID: 99, ExpertID: 7, TotalPrice: models.NewMoneyFromCents(5000)})
	result, err := svc.ResolveAttribution(order, "sess-scope", now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result != nil {
		t.Fatalf("non-matching target must miss")
	}
}

func TestAssociateSessionBindsUser(t *testing.T) {
	svc, db := setupAffiliateServiceTest(t)
	link := seedLink(t, svc, 5, constants.AffiliateTargetExpert, 5)
	seedTracking(t, db, link.ID, "sess-login", nil, time.Now().Add(-time.Hour))

	if err := svc.AssociateSession("sess-login", 77); err != nil {
		t.Fatalf("associate session failed: %v", err)
	}
	var tracking models.AffiliateTracking
	if err := db.Where("session_id = ?", "sess-login").First(&tracking).Error; err != nil {
		t.Fatalf("load tracking failed: %v", err)
	}
	if tracking.UserID == nil || *tracking.UserID != 77 {
		t.Fatalf("expected user bound to tracking, got %+v", tracking.UserID)
	}

	// 绑定用户后，即使换了会话也能按用户归因
	order := attributionOrder(77, models.OrderItem{ProductID: 3, ExpertID: 5, TotalPrice: models.NewMoneyFromCents(20000)})
	result, err := svc.ResolveAttribution(order, "", time.Now())
	if err != nil || result == nil {
		t.Fatalf("expected attribution by user, got %v %v", result, err)
	}
	if result.Commission.Cents() != 2000 {
		t.Fatalf("expected commission 2000, got %d", result.Commission.Cents())
	}
}
