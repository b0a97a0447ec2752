package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/payment"
	"github.com/expertmarket/settlement/internal/queue"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fakeProcessor 测试用支付处理器
type fakeProcessor struct {
	name         string
	chargeStatus string
	queryStatus  string
	chargeErr    error
	chargeCalls  int
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) Charge(_ context.Context, input payment.ChargeInput) (*payment.ChargeResult, error) {
	p.chargeCalls++
	if p.chargeErr != nil {
		return nil, p.chargeErr
	}
	status := p.chargeStatus
	if status == "" {
		status = payment.StatusSucceeded
	}
	result := &payment.ChargeResult{
		ProviderRef: fmt.Sprintf("fake_%s_%d", input.IdempotencyKey, p.chargeCalls),
		Status:      status,
	}
	if status == payment.StatusRedirectRequired {
		result.RedirectURL = "https://pay.example.com/redirect"
	}
	if status == payment.StatusFailed {
		result.FailureReason = "card declined"
	}
	return result, nil
}

func (p *fakeProcessor) Refund(_ context.Context, input payment.RefundInput) (*payment.RefundResult, error) {
	return &payment.RefundResult{ProviderRef: "refund_" + input.ChargeRef, Status: payment.StatusSucceeded}, nil
}

func (p *fakeProcessor) Query(_ context.Context, providerRef string) (*payment.ChargeResult, error) {
	status := p.queryStatus
	if status == "" {
		status = payment.StatusSucceeded
	}
	return &payment.ChargeResult{ProviderRef: providerRef, Status: status}, nil
}

type orderServiceFixture struct {
	svc       *OrderService
	escrowSvc *EscrowService
	db        *gorm.DB
	processor *fakeProcessor
}

func setupOrderServiceTest(t *testing.T) *orderServiceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:order_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderDiscount{},
		&models.PromoCode{},
		&models.PromoCodeUsage{},
		&models.LoyaltyReward{},
		&models.EscrowTransaction{},
		&models.AffiliateLink{},
		&models.AffiliateTracking{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	promoRepo := repository.NewPromoCodeRepository(db)
	usageRepo := repository.NewPromoCodeUsageRepository(db)
	loyaltyRepo := repository.NewLoyaltyRewardRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	userRepo := repository.NewUserRepository(db)
	linkRepo := repository.NewAffiliateLinkRepository(db)
	trackingRepo := repository.NewAffiliateTrackingRepository(db)

	processor := &fakeProcessor{name: "stripe"}
	registry := payment.NewRegistry()
	registry.Register(processor)

	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("create queue client failed: %v", err)
	}

	discountSvc := NewDiscountService(promoRepo, usageRepo, loyaltyRepo)
	commissionSvc := NewCommissionService(0.2, 0.5)
	affiliateSvc := NewAffiliateService(linkRepo, trackingRepo, 7, 600, 0.5)
	escrowSvc := NewEscrowService(escrowRepo, paymentRepo, userRepo, registry, 30, "USD")
	svc := NewOrderService(orderRepo, productRepo, promoRepo, usageRepo, loyaltyRepo, paymentRepo, discountSvc, commissionSvc, affiliateSvc, escrowSvc, registry, queueClient, OrderServiceConfig{
		TaxRatePercent:    10,
		ShippingFlatCents: 500,
		Currency:          "USD",
		QueryMaxRetries:   3,
	})
	return &orderServiceFixture{svc: svc, escrowSvc: escrowSvc, db: db, processor: processor}
}

func seedProduct(t *testing.T, db *gorm.DB, expertID uint, priceCents int64, digital bool, rate *decimal.Decimal) *models.Product {
	t.Helper()
	product := &models.Product{
		ExpertID:       expertID,
		TitleJSON:      models.JSON{"en": "consultation"},
		Price:          models.NewMoneyFromCents(priceCents),
		IsDigital:      digital,
		CommissionRate: rate,
		IsActive:       true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCheckoutTotalsAndCommissionSplit(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 10000, true, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 2}},
		PaymentMethod:  "stripe",
		MethodRef:      "pm_test",
		IdempotencyKey: "chk-totals-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	order := result.Order
	if order.Subtotal.Cents() != 20000 {
		t.Fatalf("expected subtotal 20000, got %d", order.Subtotal.Cents())
	}
	if order.Tax.Cents() != 2000 {
		t.Fatalf("expected tax 2000, got %d", order.Tax.Cents())
	}
	if order.ShippingCost != 0 {
		t.Fatalf("digital only order should have no shipping, got %d", order.ShippingCost.Cents())
	}
	if order.TotalAmount.Cents() != 22000 {
		t.Fatalf("expected total 22000, got %d", order.TotalAmount.Cents())
	}

	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.CommissionAmount.Cents() != 4000 {
		t.Fatalf("expected commission 4000, got %d", item.CommissionAmount.Cents())
	}
	if item.CommissionAmount+item.ExpertPayoutAmount != item.TotalPrice {
		t.Fatalf("commission %d + payout %d must equal line total %d",
			item.CommissionAmount.Cents(), item.ExpertPayoutAmount.Cents(), item.TotalPrice.Cents())
	}
}

func TestCommissionSplitExactOnOddAmounts(t *testing.T) {
	svc := NewCommissionService(0.2, 0.5)
	rate := decimal.NewFromFloat(0.3333)
	for _, cents := range []int64{1, 99, 101, 12345, 99999} {
		total := models.NewMoneyFromCents(cents)
		commission, payout := svc.Split(total, rate)
		if commission+payout != total {
			t.Fatalf("split of %d cents not exact: %d + %d", cents, commission.Cents(), payout.Cents())
		}
	}
}

func TestCheckoutDiscountClampToZero(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 1000, true, nil)
	if err := f.db.Create(&models.PromoCode{
		Code:     "MEGA",
		Type:     constants.DiscountTypeFixed,
		Value:    models.NewMoneyFromCents(100000),
		IsActive: true,
	}).Error; err != nil {
		t.Fatalf("create promo failed: %v", err)
	}

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PromoCode:      "MEGA",
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-clamp-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.Order.TotalAmount < 0 {
		t.Fatalf("total must never go negative, got %d", result.Order.TotalAmount.Cents())
	}
	// 优惠封顶为参与金额，税费仍需支付
	if result.Order.DiscountTotal.Cents() != 1000 {
		t.Fatalf("expected discount capped at 1000, got %d", result.Order.DiscountTotal.Cents())
	}
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)

	input := CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-replay-1",
	}
	first, err := f.svc.Checkout(input)
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	second, err := f.svc.Checkout(input)
	if err != nil {
		t.Fatalf("replay checkout failed: %v", err)
	}
	if first.Order.ID != second.Order.ID {
		t.Fatalf("replay must return the same order: %d vs %d", first.Order.ID, second.Order.ID)
	}
	if f.processor.chargeCalls != 1 {
		t.Fatalf("replay must not charge again, calls=%d", f.processor.chargeCalls)
	}
}

func TestCheckoutChargeFailedReleasesPromo(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)
	if err := f.db.Create(&models.PromoCode{
		Code:       "ONCE",
		Type:       constants.DiscountTypeFixed,
		Value:      models.NewMoneyFromCents(500),
		UsageLimit: 1,
		IsActive:   true,
	}).Error; err != nil {
		t.Fatalf("create promo failed: %v", err)
	}
	f.processor.chargeStatus = payment.StatusFailed

	_, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PromoCode:      "ONCE",
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-fail-1",
	})
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected payment declined, got %v", err)
	}

	var promo models.PromoCode
	if err := f.db.Where("code = ?", "ONCE").First(&promo).Error; err != nil {
		t.Fatalf("reload promo failed: %v", err)
	}
	if promo.UsedCount != 0 {
		t.Fatalf("failed charge must release promo reservation, used_count=%d", promo.UsedCount)
	}
}

func TestCheckoutRedirectRequiredNotSettled(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)
	f.processor.chargeStatus = payment.StatusRedirectRequired

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-redirect-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.RedirectURL == "" {
		t.Fatalf("expected redirect url")
	}
	var order models.Order
	if err := f.db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	// redirect_required 不等于支付成功，订单必须保持未结清
	if order.PaymentStatus == constants.OrderPaymentStatusCompleted {
		t.Fatalf("redirect_required must not settle the order")
	}
	if order.PaidAt != nil {
		t.Fatalf("order must not be marked paid")
	}
}

func TestSettleOrderConsumesLoyaltyOnce(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)
	if err := f.db.Create(&models.LoyaltyReward{
		Code:   "LRSETTLE",
		UserID: 1,
		Type:   constants.DiscountTypeFixed,
		Value:  models.NewMoneyFromCents(300),
	}).Error; err != nil {
		t.Fatalf("create reward failed: %v", err)
	}

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		LoyaltyCode:    "LRSETTLE",
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-loyalty-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// 支付成功后结算会核销奖励；重复结算必须幂等
	if err := f.svc.SettleOrder(result.Order.ID); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if err := f.svc.SettleOrder(result.Order.ID); err != nil {
		t.Fatalf("repeat settle failed: %v", err)
	}

	var reward models.LoyaltyReward
	if err := f.db.Where("code = ?", "LRSETTLE").First(&reward).Error; err != nil {
		t.Fatalf("reload reward failed: %v", err)
	}
	if !reward.Consumed {
		t.Fatalf("reward must be consumed after settlement")
	}
	if reward.OrderID == nil || *reward.OrderID != result.Order.ID {
		t.Fatalf("reward must record consuming order")
	}

	var usageCount int64
	if err := f.db.Model(&models.PromoCodeUsage{}).Count(&usageCount).Error; err != nil {
		t.Fatalf("count usages failed: %v", err)
	}
	if usageCount != 0 {
		t.Fatalf("no promo usage rows expected, got %d", usageCount)
	}
}

func TestCheckoutWithEscrowFundsOnSettle(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 9, 50000, true, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:          1,
		Items:           []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:   "stripe",
		IdempotencyKey:  "chk-escrow-1",
		EscrowRequested: true,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	var order models.Order
	if err := f.db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.EscrowID == nil {
		t.Fatalf("escrow requested order must carry escrow id")
	}
	var escrow models.EscrowTransaction
	if err := f.db.First(&escrow, *order.EscrowID).Error; err != nil {
		t.Fatalf("load escrow failed: %v", err)
	}
	if escrow.Status != constants.EscrowStatusFunded {
		t.Fatalf("escrow should be funded after successful settlement, got %s", escrow.Status)
	}
	if escrow.Amount != order.TotalAmount {
		t.Fatalf("escrow amount mismatch: %d vs %d", escrow.Amount.Cents(), order.TotalAmount.Cents())
	}
}

func TestCheckoutPromoUsageLimitSequential(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)
	if err := f.db.Create(&models.PromoCode{
		Code:       "LIMIT2",
		Type:       constants.DiscountTypeFixed,
		Value:      models.NewMoneyFromCents(500),
		UsageLimit: 2,
		IsActive:   true,
	}).Error; err != nil {
		t.Fatalf("create promo failed: %v", err)
	}

	succeeded := 0
	var conflicts int
	for i := 0; i < 3; i++ {
		_, err := f.svc.Checkout(CheckoutInput{
			UserID:         uint(i + 1),
			Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
			PromoCode:      "LIMIT2",
			PaymentMethod:  "stripe",
			IdempotencyKey: fmt.Sprintf("chk-limit-%d", i),
		})
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrPromoUsageLimit):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 || conflicts != 1 {
		t.Fatalf("expected exactly 2 grants and 1 conflict, got %d/%d", succeeded, conflicts)
	}
}

func TestHandlePaymentQuerySettlesPendingCharge(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)
	f.processor.chargeStatus = payment.StatusPending
	f.processor.queryStatus = payment.StatusSucceeded

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-pending-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.Payment.Status != constants.ChargeStatusPending {
		t.Fatalf("expected pending charge, got %s", result.Payment.Status)
	}

	if err := f.svc.HandlePaymentQuery(context.Background(), result.Payment.ID, 1); err != nil {
		t.Fatalf("payment query failed: %v", err)
	}
	var order models.Order
	if err := f.db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.PaymentStatus != constants.OrderPaymentStatusCompleted {
		t.Fatalf("order should be paid after query confirms, got %s", order.PaymentStatus)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, false, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-status-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// 支付成功后内联结算已推进到 processing
	order, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusShipped)
	if err != nil {
		t.Fatalf("transition to shipped failed: %v", err)
	}
	if order.Status != constants.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", order.Status)
	}
	if _, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusCompleted); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("shipped -> completed must be rejected, got %v", err)
	}
}

func TestTransitionStatusCompletedRequiresPayment(t *testing.T) {
	f := setupOrderServiceTest(t)
	f.processor.chargeStatus = payment.StatusPending
	product := seedProduct(t, f.db, 2, 5000, false, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-unpaid-complete-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.Order.PaymentStatus != constants.OrderPaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", result.Order.PaymentStatus)
	}

	// 未支付订单允许进入履约流程，但走不到 completed
	if _, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusProcessing); err != nil {
		t.Fatalf("transition to processing failed: %v", err)
	}
	if _, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusDelivered); err != nil {
		t.Fatalf("transition to delivered failed: %v", err)
	}
	if _, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusCompleted); !errors.Is(err, ErrOrderUnpaid) {
		t.Fatalf("unpaid order must not complete, got %v", err)
	}
}

func TestTransitionStatusCompletedRequiresDigitalDelivery(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-undelivered-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// 人为抹掉交付时间并退回 delivered，验证完成门槛
	if err := f.db.Model(&models.OrderItem{}).Where("order_id = ?", result.Order.ID).
		Update("delivered_at", nil).Error; err != nil {
		t.Fatalf("reset delivered_at failed: %v", err)
	}
	if err := f.db.Model(&models.Order{}).Where("id = ?", result.Order.ID).
		Update("status", constants.OrderStatusDelivered).Error; err != nil {
		t.Fatalf("reset status failed: %v", err)
	}

	if _, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusCompleted); !errors.Is(err, ErrOrderUndelivered) {
		t.Fatalf("undelivered digital item must block completion, got %v", err)
	}

	if err := f.db.Model(&models.OrderItem{}).Where("order_id = ?", result.Order.ID).
		Update("delivered_at", time.Now()).Error; err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	order, err := f.svc.TransitionStatus(result.Order.ID, constants.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("completion after delivery failed: %v", err)
	}
	if order.Status != constants.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}
}

func TestSettleOrderCompletesDigitalOnlyOrder(t *testing.T) {
	f := setupOrderServiceTest(t)
	product := seedProduct(t, f.db, 2, 5000, true, nil)

	// 队列未启用，支付成功后内联结算
	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-digital-complete-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	var order models.Order
	if err := f.db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.Status != constants.OrderStatusCompleted {
		t.Fatalf("digital-only paid order must auto-complete, got %s", order.Status)
	}

	var item models.OrderItem
	if err := f.db.Where("order_id = ?", order.ID).First(&item).Error; err != nil {
		t.Fatalf("reload item failed: %v", err)
	}
	if item.DeliveredAt == nil {
		t.Fatalf("digital item must carry delivery timestamp after settlement")
	}
}

func TestRedirectChargeSettlesViaPaymentQuery(t *testing.T) {
	f := setupOrderServiceTest(t)
	f.processor.chargeStatus = payment.StatusRedirectRequired
	f.processor.queryStatus = payment.StatusSucceeded
	product := seedProduct(t, f.db, 2, 5000, true, nil)

	result, err := f.svc.Checkout(CheckoutInput{
		UserID:         1,
		Items:          []CheckoutItemInput{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod:  "stripe",
		IdempotencyKey: "chk-redirect-settle-1",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.RedirectURL == "" {
		t.Fatalf("redirect charge must surface redirect url")
	}
	if result.Order.PaymentStatus != constants.OrderPaymentStatusPending {
		t.Fatalf("expected pending payment before approval, got %s", result.Order.PaymentStatus)
	}

	// 用户在跳转页完成支付后，轮询任务把订单推到终态
	if err := f.svc.HandlePaymentQuery(context.Background(), result.Payment.ID, 1); err != nil {
		t.Fatalf("payment query failed: %v", err)
	}

	var order models.Order
	if err := f.db.First(&order, result.Order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if order.PaymentStatus != constants.OrderPaymentStatusCompleted {
		t.Fatalf("redirect charge must settle after query, got %s", order.PaymentStatus)
	}
	if order.Status != constants.OrderStatusCompleted {
		t.Fatalf("digital-only order must complete after settlement, got %s", order.Status)
	}
}
