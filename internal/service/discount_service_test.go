package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupDiscountServiceTest(t *testing.T) (*DiscountService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:discount_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.PromoCode{},
		&models.PromoCodeUsage{},
		&models.LoyaltyReward{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	promoRepo := repository.NewPromoCodeRepository(db)
	usageRepo := repository.NewPromoCodeUsageRepository(db)
	loyaltyRepo := repository.NewLoyaltyRewardRepository(db)
	return NewDiscountService(promoRepo, usageRepo, loyaltyRepo), db
}

func createTestPromo(t *testing.T, db *gorm.DB, promo *models.PromoCode) *models.PromoCode {
	t.Helper()
	if err := db.Create(promo).Error; err != nil {
		t.Fatalf("create promo failed: %v", err)
	}
	return promo
}

func testItems(totals ...int64) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(totals))
	for i, total := range totals {
		items = append(items, models.OrderItem{
			ProductID:  uint(i + 1),
			TotalPrice: models.NewMoneyFromCents(total),
		})
	}
	return items
}

func TestApplyPromoPercentage(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	createTestPromo(t, db, &models.PromoCode{
		Code:     "SAVE15",
		Type:     constants.DiscountTypePercentage,
		Value:    models.NewMoneyFromCents(1500), // 15
		IsActive: true,
	})

	line, promo, err := svc.ApplyPromo(ApplyPromoInput{
		Code:     "SAVE15",
		UserID:   1,
		Items:    testItems(10000),
		Subtotal: models.NewMoneyFromCents(10000),
	})
	if err != nil {
		t.Fatalf("apply promo failed: %v", err)
	}
	if promo == nil || promo.Code != "SAVE15" {
		t.Fatalf("unexpected promo: %+v", promo)
	}
	if line.Amount.Cents() != 1500 {
		t.Fatalf("expected 1500 discount cents, got %d", line.Amount.Cents())
	}
}

func TestApplyPromoFixedCappedBySubtotal(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	createTestPromo(t, db, &models.PromoCode{
		Code:     "BIG",
		Type:     constants.DiscountTypeFixed,
		Value:    models.NewMoneyFromCents(50000),
		IsActive: true,
	})

	line, _, err := svc.ApplyPromo(ApplyPromoInput{
		Code:     "BIG",
		UserID:   1,
		Items:    testItems(3000),
		Subtotal: models.NewMoneyFromCents(3000),
	})
	if err != nil {
		t.Fatalf("apply promo failed: %v", err)
	}
	if line.Amount.Cents() != 3000 {
		t.Fatalf("discount should cap at eligible subtotal, got %d", line.Amount.Cents())
	}
}

func TestApplyPromoMaxDiscountCap(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	createTestPromo(t, db, &models.PromoCode{
		Code:        "HALF",
		Type:        constants.DiscountTypePercentage,
		Value:       models.NewMoneyFromCents(5000), // 50
		MaxDiscount: models.NewMoneyFromCents(2000),
		IsActive:    true,
	})

	line, _, err := svc.ApplyPromo(ApplyPromoInput{
		Code:     "HALF",
		UserID:   1,
		Items:    testItems(10000),
		Subtotal: models.NewMoneyFromCents(10000),
	})
	if err != nil {
		t.Fatalf("apply promo failed: %v", err)
	}
	if line.Amount.Cents() != 2000 {
		t.Fatalf("expected max discount cap 2000, got %d", line.Amount.Cents())
	}
}

func TestApplyPromoFreeShipping(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	createTestPromo(t, db, &models.PromoCode{
		Code:     "FREESHIP",
		Type:     constants.DiscountTypeFreeShipping,
		IsActive: true,
	})

	line, _, err := svc.ApplyPromo(ApplyPromoInput{
		Code:         "FREESHIP",
		UserID:       1,
		Items:        testItems(5000),
		Subtotal:     models.NewMoneyFromCents(5000),
		ShippingCost: models.NewMoneyFromCents(799),
	})
	if err != nil {
		t.Fatalf("apply promo failed: %v", err)
	}
	if !line.FreeShipping {
		t.Fatalf("expected free shipping line")
	}
	if line.Amount != 0 {
		t.Fatalf("free shipping amount should be zero, got %d", line.Amount.Cents())
	}
	if line.OriginalShippingCost.Cents() != 799 {
		t.Fatalf("expected original shipping 799, got %d", line.OriginalShippingCost.Cents())
	}
}

func TestApplyPromoValidationChain(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	createTestPromo(t, db, &models.PromoCode{Code: "OFF", Type: constants.DiscountTypeFixed, Value: models.NewMoneyFromCents(100), IsActive: false})
	createTestPromo(t, db, &models.PromoCode{Code: "LATER", Type: constants.DiscountTypeFixed, Value: models.NewMoneyFromCents(100), IsActive: true, StartsAt: &future})
	createTestPromo(t, db, &models.PromoCode{Code: "GONE", Type: constants.DiscountTypeFixed, Value: models.NewMoneyFromCents(100), IsActive: true, EndsAt: &past})
	createTestPromo(t, db, &models.PromoCode{Code: "MIN", Type: constants.DiscountTypeFixed, Value: models.NewMoneyFromCents(100), IsActive: true, MinPurchase: models.NewMoneyFromCents(9999)})

	cases := []struct {
		code string
		want error
	}{
		{"MISSING", ErrPromoNotFound},
		{"OFF", ErrPromoInactive},
		{"LATER", ErrPromoNotStarted},
		{"GONE", ErrPromoExpired},
		{"MIN", ErrPromoMinPurchase},
	}
	for _, tc := range cases {
		_, _, err := svc.ApplyPromo(ApplyPromoInput{
			Code:     tc.code,
			UserID:   1,
			Items:    testItems(5000),
			Subtotal: models.NewMoneyFromCents(5000),
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
	}
}

func TestApplyPromoEligibleProductsOnly(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	createTestPromo(t, db, &models.PromoCode{
		Code:               "SCOPED",
		Type:               constants.DiscountTypePercentage,
		Value:              models.NewMoneyFromCents(1000), // 10
		EligibleProductIDs: models.StringArray{"2"},
		IsActive:           true,
	})

	// 商品1 不参与，商品2 参与
	line, _, err := svc.ApplyPromo(ApplyPromoInput{
		Code:     "SCOPED",
		UserID:   1,
		Items:    testItems(10000, 4000),
		Subtotal: models.NewMoneyFromCents(14000),
	})
	if err != nil {
		t.Fatalf("apply promo failed: %v", err)
	}
	if line.Amount.Cents() != 400 {
		t.Fatalf("expected discount on eligible item only (400), got %d", line.Amount.Cents())
	}
}

func TestApplyLoyaltyOwnershipAndConsumption(t *testing.T) {
	svc, db := setupDiscountServiceTest(t)
	if err := db.Create(&models.LoyaltyReward{
		Code:   "LR1",
		UserID: 7,
		Type:   constants.DiscountTypeFixed,
		Value:  models.NewMoneyFromCents(500),
	}).Error; err != nil {
		t.Fatalf("create reward failed: %v", err)
	}

	if _, _, err := svc.ApplyLoyalty("LR1", 8, models.NewMoneyFromCents(5000)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	line, _, err := svc.ApplyLoyalty("LR1", 7, models.NewMoneyFromCents(5000))
	if err != nil {
		t.Fatalf("apply loyalty failed: %v", err)
	}
	if line.Amount.Cents() != 500 {
		t.Fatalf("expected 500, got %d", line.Amount.Cents())
	}

	if err := db.Model(&models.LoyaltyReward{}).Where("code = ?", "LR1").Update("consumed", true).Error; err != nil {
		t.Fatalf("mark consumed failed: %v", err)
	}
	if _, _, err := svc.ApplyLoyalty("LR1", 7, models.NewMoneyFromCents(5000)); !errors.Is(err, ErrLoyaltyConsumed) {
		t.Fatalf("expected consumed error, got %v", err)
	}
}

func TestReserveUsageAtomicLimit(t *testing.T) {
	_, db := setupDiscountServiceTest(t)
	promo := createTestPromo(t, db, &models.PromoCode{
		Code:       "LIMIT4",
		Type:       constants.DiscountTypeFixed,
		Value:      models.NewMoneyFromCents(100),
		UsageLimit: 4,
		IsActive:   true,
	})
	promoRepo := repository.NewPromoCodeRepository(db)

	granted := 0
	for i := 0; i < 5; i++ {
		ok, err := promoRepo.ReserveUsage(promo.ID)
		if err != nil {
			t.Fatalf("reserve usage failed: %v", err)
		}
		if ok {
			granted++
		}
	}
	if granted != 4 {
		t.Fatalf("expected exactly 4 reservations to succeed, got %d", granted)
	}

	var reloaded models.PromoCode
	if err := db.First(&reloaded, promo.ID).Error; err != nil {
		t.Fatalf("reload promo failed: %v", err)
	}
	if reloaded.UsedCount != 4 {
		t.Fatalf("used_count should never exceed limit, got %d", reloaded.UsedCount)
	}

	if err := promoRepo.ReleaseUsage(promo.ID); err != nil {
		t.Fatalf("release usage failed: %v", err)
	}
	ok, err := promoRepo.ReserveUsage(promo.ID)
	if err != nil || !ok {
		t.Fatalf("reserve after release should succeed, ok=%v err=%v", ok, err)
	}
}

func TestReserveUsageConcurrentCap(t *testing.T) {
	_, db := setupDiscountServiceTest(t)
	promo := createTestPromo(t, db, &models.PromoCode{
		Code:       "LIMIT3C",
		Type:       constants.DiscountTypeFixed,
		Value:      models.NewMoneyFromCents(100),
		UsageLimit: 3,
		IsActive:   true,
	})
	promoRepo := repository.NewPromoCodeRepository(db)

	// sqlite 写锁粒度粗，收敛到单连接让竞争发生在带守卫的 UPDATE 上
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	const workers = 8
	var granted int64
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := promoRepo.ReserveUsage(promo.ID)
			if err != nil {
				errCh <- err
				return
			}
			if ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent reserve failed: %v", err)
	}

	if granted != 3 {
		t.Fatalf("expected exactly 3 concurrent reservations to win, got %d", granted)
	}
	var reloaded models.PromoCode
	if err := db.First(&reloaded, promo.ID).Error; err != nil {
		t.Fatalf("reload promo failed: %v", err)
	}
	if reloaded.UsedCount != 3 {
		t.Fatalf("used_count must not exceed limit under contention, got %d", reloaded.UsedCount)
	}
}
