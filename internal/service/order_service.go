package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/cache"
	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/payment"
	"github.com/expertmarket/settlement/internal/queue"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService 订单结算服务
type OrderService struct {
	orderRepo      repository.OrderRepository
	productRepo    repository.ProductRepository
	promoRepo      repository.PromoCodeRepository
	promoUsageRepo repository.PromoCodeUsageRepository
	loyaltyRepo    repository.LoyaltyRewardRepository
	paymentRepo    repository.PaymentRepository
	discountSvc    *DiscountService
	commissionSvc  *CommissionService
	affiliateSvc   *AffiliateService
	escrowSvc      *EscrowService
	registry       *payment.Registry
	queueClient    *queue.Client

	taxRate         decimal.Decimal
	shippingFlat    models.Money
	idempotencyTTL  time.Duration
	currency        string
	queryMaxRetries int
}

// OrderServiceConfig 订单服务参数
type OrderServiceConfig struct {
	TaxRatePercent        float64
	ShippingFlatCents     int64
	IdempotencyTTLMinutes int
	Currency              string
	QueryMaxRetries       int
}

// NewOrderService 创建订单结算服务
func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, promoRepo repository.PromoCodeRepository, promoUsageRepo repository.PromoCodeUsageRepository, loyaltyRepo repository.LoyaltyRewardRepository, paymentRepo repository.PaymentRepository, discountSvc *DiscountService, commissionSvc *CommissionService, affiliateSvc *AffiliateService, escrowSvc *EscrowService, registry *payment.Registry, queueClient *queue.Client, cfg OrderServiceConfig) *OrderService {
	ttl := time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	retries := cfg.QueryMaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &OrderService{
		orderRepo:       orderRepo,
		productRepo:     productRepo,
		promoRepo:       promoRepo,
		promoUsageRepo:  promoUsageRepo,
		loyaltyRepo:     loyaltyRepo,
		paymentRepo:     paymentRepo,
		discountSvc:     discountSvc,
		commissionSvc:   commissionSvc,
		affiliateSvc:    affiliateSvc,
		escrowSvc:       escrowSvc,
		registry:        registry,
		queueClient:     queueClient,
		taxRate:         decimal.NewFromFloat(cfg.TaxRatePercent).Div(decimal.NewFromInt(100)),
		shippingFlat:    models.NewMoneyFromCents(cfg.ShippingFlatCents),
		idempotencyTTL:  ttl,
		currency:        currency,
		queryMaxRetries: retries,
	}
}

// CheckoutItemInput 下单商品项
type CheckoutItemInput struct {
	ProductID uint
	Quantity  int
}

// CheckoutInput 下单结算输入
type CheckoutInput struct {
	UserID          uint
	Items           []CheckoutItemInput
	PromoCode       string
	LoyaltyCode     string
	PaymentMethod   string
	MethodRef       string
	IdempotencyKey  string
	SessionID       string
	ClientIP        string
	ShippingDetails models.JSON
	EscrowRequested bool
	EscrowExpertID  uint
	Context         context.Context
}

// CheckoutResult 下单结算结果
type CheckoutResult struct {
	Order       *models.Order   `json:"order"`
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// 订单履约状态机
var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusProcessing: true,
		constants.OrderStatusCancelled:  true,
	},
	constants.OrderStatusProcessing: {
		constants.OrderStatusShipped:   true,
		constants.OrderStatusDelivered: true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusShipped: {
		constants.OrderStatusDelivered: true,
	},
	constants.OrderStatusDelivered: {
		constants.OrderStatusCompleted: true,
		constants.OrderStatusRefunded:  true,
	},
}

// Checkout 下单结算
// 优惠额度在事务内原子占用；扣款不自动重试，幂等键保证重放安全
func (s *OrderService) Checkout(input CheckoutInput) (*CheckoutResult, error) {
	if input.UserID == 0 || len(input.Items) == 0 {
		return nil, ErrInvalidOrderItem
	}
	idempotencyKey := strings.TrimSpace(input.IdempotencyKey)
	if idempotencyKey == "" {
		return nil, ErrIdempotencyRequired
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	// 幂等重放：先查缓存快照，再兜底查支付流水的唯一幂等键
	if snapshot, hit, err := cache.GetCheckoutSnapshot(ctx, input.UserID, idempotencyKey); err == nil && hit {
		return s.replayCheckout(snapshot.OrderID)
	}
	if existing, err := s.paymentRepo.GetByIdempotencyKey(idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.OrderID == nil {
			return nil, ErrIdempotencyConflict
		}
		return s.replayCheckout(*existing.OrderID)
	}

	processor, err := s.registry.Get(input.PaymentMethod)
	if err != nil {
		return nil, ErrProcessorNotFound
	}

	draft, err := s.buildOrderDraft(input)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := draft.Order
	order.OrderNo = generateOrderNo()
	order.PaymentMethod = processor.Name()
	order.CreatedAt = now
	order.UpdatedAt = now

	var pay *models.Payment
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		if err := orderRepo.Create(order); err != nil {
			return ErrOrderCreateFailed
		}

		// 优惠码额度原子占用：预占失败说明额度已被并发请求抢完
		if draft.Promo != nil {
			ok, err := s.promoRepo.WithTx(tx).ReserveUsage(draft.Promo.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrPromoUsageLimit
			}
		}

		if input.EscrowRequested {
			escrow := &models.EscrowTransaction{
				EscrowNo:      generateEscrowNo(),
				SenderID:      input.UserID,
				RecipientID:   draft.EscrowRecipientID,
				OrderID:       &order.ID,
				Amount:        order.TotalAmount,
				Currency:      order.Currency,
				Status:        constants.EscrowStatusCreated,
				PaymentMethod: processor.Name(),
			}
			if err := tx.Create(escrow).Error; err != nil {
				return err
			}
			order.EscrowID = &escrow.ID
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
				UpdateColumn("escrow_id", escrow.ID).Error; err != nil {
				return err
			}
		}

		pay = &models.Payment{
			OrderID:        &order.ID,
			Kind:           constants.PaymentKindCharge,
			Processor:      processor.Name(),
			MethodRef:      strings.TrimSpace(input.MethodRef),
			IdempotencyKey: idempotencyKey,
			Amount:         order.TotalAmount,
			Currency:       order.Currency,
			Status:         constants.ChargeStatusPending,
		}
		return s.paymentRepo.WithTx(tx).Create(pay)
	})
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{Order: order, Payment: pay}
	if order.TotalAmount > 0 {
		chargeResult, chargeErr := processor.Charge(ctx, payment.ChargeInput{
			IdempotencyKey: idempotencyKey,
			AmountCents:    order.TotalAmount.Cents(),
			Currency:       order.Currency,
			MethodRef:      pay.MethodRef,
			Description:    fmt.Sprintf("order %s", order.OrderNo),
			Metadata:       map[string]string{"order_no": order.OrderNo},
		})
		if chargeErr != nil {
			s.failCheckoutCharge(order, pay, chargeErr.Error())
			return nil, ErrProcessorFailed
		}
		if err := s.applyChargeResult(order, pay, chargeResult); err != nil {
			return nil, err
		}
		result.RedirectURL = chargeResult.RedirectURL
		if chargeResult.Status == payment.StatusFailed {
			return nil, ErrPaymentDeclined
		}
	} else {
		// 全额优惠订单无需扣款，直接视为支付成功
		if err := s.markOrderPaid(order, pay, ""); err != nil {
			return nil, err
		}
	}

	if err := cache.SetCheckoutSnapshot(ctx, input.UserID, idempotencyKey, &cache.CheckoutSnapshot{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		Status:      pay.Status,
		RedirectURL: result.RedirectURL,
	}, s.idempotencyTTL); err != nil {
		logger.Warnw("checkout_snapshot_cache_failed", "order_no", order.OrderNo, "error", err)
	}

	full, err := s.orderRepo.GetByIDWithItems(order.ID)
	if err == nil && full != nil {
		result.Order = full
	}
	return result, nil
}

type orderDraft struct {
	Order             *models.Order
	Promo             *models.PromoCode
	Loyalty           *models.LoyaltyReward
	EscrowRecipientID uint
}

// buildOrderDraft 计算订单金额、佣金拆分与优惠明细
func (s *OrderService) buildOrderDraft(input CheckoutInput) (*orderDraft, error) {
	productIDs := make([]uint, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, ErrInvalidOrderItem
		}
		productIDs = append(productIDs, item.ProductID)
	}
	productList, err := s.productRepo.ListByIDs(productIDs)
	if err != nil {
		return nil, err
	}
	products := make(map[uint]*models.Product, len(productList))
	for i := range productList {
		products[productList[i].ID] = &productList[i]
	}

	var orderItems []models.OrderItem
	var subtotal models.Money
	isDigitalOnly := true
	var escrowRecipientID uint
	for _, item := range input.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			return nil, ErrProductNotAvailable
		}
		if product.Price <= 0 {
			return nil, ErrProductPriceInvalid
		}
		total := models.NewMoneyFromCents(product.Price.Cents() * int64(item.Quantity))
		rate := s.commissionSvc.ResolveRate(product)
		commission, payout := s.commissionSvc.Split(total, rate)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:          product.ID,
			ExpertID:           product.ExpertID,
			TitleJSON:          product.TitleJSON,
			UnitPrice:          product.Price,
			Quantity:           item.Quantity,
			TotalPrice:         total,
			IsDigital:          product.IsDigital,
			CommissionRate:     rate,
			CommissionAmount:   commission,
			ExpertPayoutAmount: payout,
		})
		subtotal += total
		if !product.IsDigital {
			isDigitalOnly = false
		}
		if escrowRecipientID == 0 {
			escrowRecipientID = product.ExpertID
		}
	}
	if input.EscrowRequested {
		if input.EscrowExpertID != 0 {
			escrowRecipientID = input.EscrowExpertID
		}
		if escrowRecipientID == 0 || escrowRecipientID == input.UserID {
			return nil, ErrForbidden
		}
	}

	shipping := models.Money(0)
	if !isDigitalOnly {
		shipping = s.shippingFlat
	}
	tax := subtotal.MulRate(s.taxRate)

	var discounts []models.OrderDiscount
	var discountTotal models.Money
	originalShipping := shipping
	var promo *models.PromoCode
	var loyalty *models.LoyaltyReward

	if strings.TrimSpace(input.PromoCode) != "" {
		line, matched, err := s.discountSvc.ApplyPromo(ApplyPromoInput{
			Code:         input.PromoCode,
			UserID:       input.UserID,
			Items:        orderItems,
			Products:     products,
			Subtotal:     subtotal,
			ShippingCost: shipping,
		})
		if err != nil {
			return nil, err
		}
		promo = matched
		if line.FreeShipping {
			shipping = 0
		}
		discountTotal += line.Amount
		discounts = append(discounts, models.OrderDiscount{
			Code:                 line.Code,
			Type:                 line.Type,
			Value:                line.Value,
			Amount:               line.Amount,
			OriginalShippingCost: line.OriginalShippingCost,
			PromoCodeID:          line.PromoCodeID,
		})
	}
	if strings.TrimSpace(input.LoyaltyCode) != "" {
		line, reward, err := s.discountSvc.ApplyLoyalty(input.LoyaltyCode, input.UserID, subtotal)
		if err != nil {
			return nil, err
		}
		loyalty = reward
		discountTotal += line.Amount
		discounts = append(discounts, models.OrderDiscount{
			Code:            line.Code,
			Type:            line.Type,
			Value:           line.Value,
			Amount:          line.Amount,
			LoyaltyRewardID: line.LoyaltyRewardID,
		})
	}

	// 应付金额下限为零，优惠永不倒贴
	total := subtotal + tax + shipping - discountTotal
	if total < 0 {
		total = 0
	}

	order := &models.Order{
		UserID:               input.UserID,
		Status:               constants.OrderStatusPending,
		PaymentStatus:        constants.OrderPaymentStatusPending,
		Currency:             s.currency,
		Subtotal:             subtotal,
		Tax:                  tax,
		ShippingCost:         shipping,
		OriginalShippingCost: originalShipping,
		DiscountTotal:        discountTotal,
		TotalAmount:          total,
		IsDigitalOnly:        isDigitalOnly,
		EscrowRequested:      input.EscrowRequested,
		ShippingDetails:      input.ShippingDetails,
		Items:                orderItems,
		Discounts:            discounts,
	}
	if promo != nil {
		order.PromoCodeID = &promo.ID
	}
	if loyalty != nil {
		order.LoyaltyRewardID = &loyalty.ID
	}
	return &orderDraft{
		Order:             order,
		Promo:             promo,
		Loyalty:           loyalty,
		EscrowRecipientID: escrowRecipientID,
	}, nil
}

// applyChargeResult 落地扣款结果并推进订单支付状态
func (s *OrderService) applyChargeResult(order *models.Order, pay *models.Payment, result *payment.ChargeResult) error {
	updates := map[string]interface{}{
		"status":       result.Status,
		"provider_ref": result.ProviderRef,
		"redirect_url": result.RedirectURL,
		"provider_raw": models.JSON(result.Raw),
	}
	if result.Status == payment.StatusFailed {
		updates["failure_reason"] = result.FailureReason
	}
	if err := s.paymentRepo.UpdateFields(pay.ID, updates); err != nil {
		return err
	}
	pay.Status = result.Status
	pay.ProviderRef = result.ProviderRef
	pay.RedirectURL = result.RedirectURL

	switch result.Status {
	case payment.StatusSucceeded:
		return s.markOrderPaid(order, pay, result.ProviderRef)
	case payment.StatusFailed:
		s.failCheckoutCharge(order, pay, result.FailureReason)
		return nil
	case payment.StatusPending, payment.StatusRedirectRequired:
		// 异步确认型处理器（STK Push、3DS、PayPal 审批页）没有回调入口，
		// 统一轮询 Query 等待终态
		if err := s.queueClient.EnqueuePaymentQuery(queue.PaymentQueryPayload{
			PaymentID: pay.ID,
			Attempt:   1,
		}, 30*time.Second); err != nil {
			logger.Errorw("checkout_enqueue_payment_query_failed", "order_no", order.OrderNo, "error", err)
		}
	}
	return nil
}

// markOrderPaid 标记订单已支付并触发后置结算
// 后置账务只重试不回滚，由 reconcile 任务兜底跑到完成
func (s *OrderService) markOrderPaid(order *models.Order, pay *models.Payment, providerRef string) error {
	now := time.Now()
	if pay.Status != constants.ChargeStatusSucceeded {
		if err := s.paymentRepo.UpdateFields(pay.ID, map[string]interface{}{
			"status":       constants.ChargeStatusSucceeded,
			"provider_ref": providerRef,
		}); err != nil {
			return err
		}
		pay.Status = constants.ChargeStatusSucceeded
	}
	if err := s.orderRepo.UpdateFields(order.ID, map[string]interface{}{
		"payment_status": constants.OrderPaymentStatusCompleted,
		"paid_at":        now,
	}); err != nil {
		return ErrOrderUpdateFailed
	}
	order.PaymentStatus = constants.OrderPaymentStatusCompleted
	order.PaidAt = &now

	inline := !s.queueClient.Enabled()
	if !inline {
		if err := s.queueClient.EnqueueSettlementReconcile(queue.SettlementReconcilePayload{OrderID: order.ID}); err != nil {
			logger.Errorw("order_enqueue_reconcile_failed", "order_no", order.OrderNo, "error", err)
			inline = true
		}
	}
	// 队列不可用时直接同步结算，避免账务悬空
	if inline {
		if settleErr := s.SettleOrder(order.ID); settleErr != nil {
			logger.Errorw("order_inline_settle_failed", "order_no", order.OrderNo, "error", settleErr)
		}
	}
	return nil
}

// failCheckoutCharge 扣款失败收尾：回滚优惠占用并标记订单失败
func (s *OrderService) failCheckoutCharge(order *models.Order, pay *models.Payment, reason string) {
	if err := s.paymentRepo.UpdateFields(pay.ID, map[string]interface{}{
		"status":         constants.ChargeStatusFailed,
		"failure_reason": reason,
	}); err != nil {
		logger.Warnw("checkout_mark_payment_failed_error", "order_no", order.OrderNo, "error", err)
	}
	if err := s.orderRepo.UpdateFields(order.ID, map[string]interface{}{
		"payment_status": constants.OrderPaymentStatusFailed,
	}); err != nil {
		logger.Warnw("checkout_mark_order_failed_error", "order_no", order.OrderNo, "error", err)
	}
	if order.PromoCodeID != nil {
		if err := s.promoRepo.ReleaseUsage(*order.PromoCodeID); err != nil {
			logger.Warnw("checkout_release_promo_failed", "order_no", order.OrderNo, "promo_code_id", *order.PromoCodeID, "error", err)
		}
	}
}

func (s *OrderService) replayCheckout(orderID uint) (*CheckoutResult, error) {
	order, err := s.orderRepo.GetByIDWithItems(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	result := &CheckoutResult{Order: order}
	payments, err := s.paymentRepo.ListByOrderID(order.ID)
	if err == nil && len(payments) > 0 {
		result.Payment = &payments[0]
		result.RedirectURL = payments[0].RedirectURL
	}
	return result, nil
}

// SettleOrder 支付成功后的结算入账，可重复执行
// 每一步都幂等：积分核销 CAS、优惠使用记录查重、归因首写生效、托管注资 CAS
func (s *OrderService) SettleOrder(orderID uint) error {
	order, err := s.orderRepo.GetByIDWithItems(orderID)
	if err != nil {
		return ErrOrderFetchFailed
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.PaymentStatus != constants.OrderPaymentStatusCompleted {
		return ErrPaymentStatusUnsettle
	}
	if order.SettledAt != nil {
		return nil
	}
	now := time.Now()

	// 积分奖励仅在支付成功后核销，首写生效
	if order.LoyaltyRewardID != nil {
		consumed, err := s.loyaltyRepo.MarkConsumed(*order.LoyaltyRewardID, order.ID)
		if err != nil {
			return err
		}
		if !consumed {
			reward, err := s.loyaltyRepo.GetByID(*order.LoyaltyRewardID)
			if err != nil {
				return err
			}
			// 被其他订单抢先消费属于异常，记录后继续，不阻塞结算
			if reward != nil && (reward.OrderID == nil || *reward.OrderID != order.ID) {
				logger.Warnw("settle_loyalty_consumed_elsewhere", "order_no", order.OrderNo, "loyalty_reward_id", *order.LoyaltyRewardID)
			}
		}
	}

	if order.PromoCodeID != nil {
		existing, err := s.promoUsageRepo.ListByOrderID(order.ID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			var discountAmount models.Money
			for _, d := range order.Discounts {
				if d.PromoCodeID != nil && *d.PromoCodeID == *order.PromoCodeID {
					discountAmount = d.Amount
				}
			}
			if err := s.promoUsageRepo.Create(&models.PromoCodeUsage{
				PromoCodeID:    *order.PromoCodeID,
				UserID:         order.UserID,
				OrderID:        order.ID,
				DiscountAmount: discountAmount,
			}); err != nil {
				return err
			}
		}
	}

	if order.AffiliateLinkID == nil && s.affiliateSvc != nil {
		attribution, err := s.affiliateSvc.ResolveAttribution(order, "", now)
		if err != nil {
			return err
		}
		if attribution != nil {
			if err := s.orderRepo.UpdateFields(order.ID, map[string]interface{}{
				"affiliate_link_id":    attribution.LinkID,
				"affiliate_commission": attribution.Commission,
			}); err != nil {
				return err
			}
		}
	}

	if order.EscrowRequested && order.EscrowID != nil && s.escrowSvc != nil {
		chargeRef := ""
		if payments, err := s.paymentRepo.ListByOrderID(order.ID); err == nil {
			for _, p := range payments {
				if p.Kind == constants.PaymentKindCharge && p.Status == constants.ChargeStatusSucceeded {
					chargeRef = p.ProviderRef
					break
				}
			}
		}
		if err := s.escrowSvc.MarkFunded(*order.EscrowID, chargeRef); err != nil {
			return err
		}
	}

	if _, err := s.orderRepo.UpdateStatusCAS(order.ID, constants.OrderStatusPending, constants.OrderStatusProcessing, nil); err != nil {
		return ErrOrderUpdateFailed
	}

	// 数字商品支付即交付；纯数字订单交付后直接走完 delivered→completed
	if err := s.orderRepo.MarkDigitalItemsDelivered(order.ID, now); err != nil {
		return ErrOrderUpdateFailed
	}
	if order.IsDigitalOnly {
		if _, err := s.orderRepo.UpdateStatusCAS(order.ID, constants.OrderStatusProcessing, constants.OrderStatusDelivered, nil); err != nil {
			return ErrOrderUpdateFailed
		}
		if _, err := s.orderRepo.UpdateStatusCAS(order.ID, constants.OrderStatusDelivered, constants.OrderStatusCompleted, nil); err != nil {
			return ErrOrderUpdateFailed
		}
	}

	if _, err := s.orderRepo.MarkSettled(order.ID); err != nil {
		return ErrOrderUpdateFailed
	}
	return nil
}

// HandlePaymentQuery 轮询异步支付结果（有限次重试）
func (s *OrderService) HandlePaymentQuery(ctx context.Context, paymentID uint, attempt int) error {
	pay, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return err
	}
	if pay == nil || pay.OrderID == nil {
		return nil
	}
	if pay.Status == constants.ChargeStatusSucceeded || pay.Status == constants.ChargeStatusFailed {
		return nil
	}
	order, err := s.orderRepo.GetByID(*pay.OrderID)
	if err != nil || order == nil {
		return err
	}

	processor, err := s.registry.Get(pay.Processor)
	if err != nil {
		return err
	}
	result, err := processor.Query(ctx, pay.ProviderRef)
	if err != nil {
		logger.Warnw("payment_query_failed", "payment_id", pay.ID, "attempt", attempt, "error", err)
		return s.requeuePaymentQuery(pay.ID, attempt)
	}

	switch result.Status {
	case payment.StatusSucceeded:
		return s.markOrderPaid(order, pay, result.ProviderRef)
	case payment.StatusFailed:
		s.failCheckoutCharge(order, pay, result.FailureReason)
		return nil
	default:
		return s.requeuePaymentQuery(pay.ID, attempt)
	}
}

func (s *OrderService) requeuePaymentQuery(paymentID uint, attempt int) error {
	if attempt >= s.queryMaxRetries {
		logger.Warnw("payment_query_retries_exhausted", "payment_id", paymentID, "attempt", attempt)
		return nil
	}
	return s.queueClient.EnqueuePaymentQuery(queue.PaymentQueryPayload{
		PaymentID: paymentID,
		Attempt:   attempt + 1,
	}, time.Duration(attempt+1)*30*time.Second)
}

// GetOrder 查询订单，非特权角色仅可见本人订单
func (s *OrderService) GetOrder(orderID, actorID uint, isPrivileged bool) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDWithItems(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isPrivileged && order.UserID != actorID {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders 分页查询订单
func (s *OrderService) ListOrders(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	return s.orderRepo.List(filter)
}

// CancelOrder 取消未支付订单并释放优惠占用
func (s *OrderService) CancelOrder(orderID, actorID uint, isPrivileged bool) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isPrivileged && order.UserID != actorID {
		return nil, ErrForbidden
	}
	if order.PaymentStatus == constants.OrderPaymentStatusCompleted {
		return nil, ErrOrderStatusInvalid
	}
	ok, err := s.orderRepo.UpdateStatusCAS(orderID, constants.OrderStatusPending, constants.OrderStatusCancelled, map[string]interface{}{
		"canceled_at": time.Now(),
	})
	if err != nil {
		return nil, ErrOrderUpdateFailed
	}
	if !ok {
		return nil, ErrOrderStatusInvalid
	}
	if order.PromoCodeID != nil {
		if err := s.promoRepo.ReleaseUsage(*order.PromoCodeID); err != nil {
			logger.Warnw("order_cancel_release_promo_failed", "order_no", order.OrderNo, "error", err)
		}
	}
	return s.orderRepo.GetByID(orderID)
}

// TransitionStatus 按状态机推进订单履约状态
// completed 只有已支付且数字商品全部交付的订单才可达
func (s *OrderService) TransitionStatus(orderID uint, toStatus string) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDWithItems(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	next, ok := allowedTransitions[order.Status]
	if !ok || !next[toStatus] {
		return nil, ErrOrderStatusInvalid
	}
	if toStatus == constants.OrderStatusCompleted {
		if order.PaymentStatus != constants.OrderPaymentStatusCompleted {
			return nil, ErrOrderUnpaid
		}
		for _, item := range order.Items {
			if item.IsDigital && item.DeliveredAt == nil {
				return nil, ErrOrderUndelivered
			}
		}
	}
	changed, err := s.orderRepo.UpdateStatusCAS(orderID, order.Status, toStatus, nil)
	if err != nil {
		return nil, ErrOrderUpdateFailed
	}
	if !changed {
		return nil, ErrOrderStatusInvalid
	}
	return s.orderRepo.GetByID(orderID)
}

func generateOrderNo() string {
	return generateBusinessNo("EM")
}
