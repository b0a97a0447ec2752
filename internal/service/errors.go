package service

import "errors"

// 业务哨兵错误，处理层据此映射 HTTP 状态码
var (
	// 参数与校验
	ErrInvalidOrderItem    = errors.New("order item invalid")
	ErrQuantityInvalid     = errors.New("quantity invalid")
	ErrAmountInvalid       = errors.New("amount invalid")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrSplitRatioInvalid   = errors.New("split ratio invalid")

	// 权限
	ErrForbidden = errors.New("operation not allowed")

	// 订单
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderFetchFailed   = errors.New("order fetch failed")
	ErrOrderCreateFailed  = errors.New("order create failed")
	ErrOrderUpdateFailed  = errors.New("order update failed")
	ErrOrderStatusInvalid = errors.New("order status invalid")
	ErrOrderUnpaid        = errors.New("order not paid")
	ErrOrderUndelivered   = errors.New("digital items not delivered")

	// 商品
	ErrProductNotAvailable = errors.New("product not available")
	ErrProductPriceInvalid = errors.New("product price invalid")

	// 优惠码
	ErrPromoNotFound     = errors.New("promo code not found")
	ErrPromoInactive     = errors.New("promo code inactive")
	ErrPromoNotStarted   = errors.New("promo code not started")
	ErrPromoExpired      = errors.New("promo code expired")
	ErrPromoUsageLimit   = errors.New("promo code usage limit reached")
	ErrPromoPerUserLimit = errors.New("promo code per user limit reached")
	ErrPromoMinPurchase  = errors.New("promo code minimum purchase not met")
	ErrPromoNotEligible  = errors.New("promo code not eligible")
	ErrPromoInvalid      = errors.New("promo code invalid")

	// 积分奖励
	ErrLoyaltyNotFound = errors.New("loyalty reward not found")
	ErrLoyaltyExpired  = errors.New("loyalty reward expired")
	ErrLoyaltyConsumed = errors.New("loyalty reward already consumed")
	ErrLoyaltyInvalid  = errors.New("loyalty reward invalid")

	// 托管
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowStateConflict = errors.New("escrow state conflict")
	ErrEscrowAmountInvalid = errors.New("escrow amount invalid")
	ErrEscrowNotDisputed   = errors.New("escrow not disputed")

	// 推广
	ErrAffiliateLinkNotFound = errors.New("affiliate link not found")
	ErrAffiliateLinkInactive = errors.New("affiliate link inactive")
	ErrAffiliateRateInvalid  = errors.New("affiliate commission rate invalid")

	// 支付
	ErrPaymentInvalid        = errors.New("payment invalid")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrProcessorNotFound     = errors.New("payment processor not found")
	ErrProcessorFailed       = errors.New("payment processor failed")
	ErrPaymentDeclined       = errors.New("payment declined")
	ErrIdempotencyConflict   = errors.New("idempotency key already used")
	ErrRefundFailed          = errors.New("refund failed")
	ErrPaymentStatusUnsettle = errors.New("payment not settled")

	// 基础设施
	ErrQueueUnavailable = errors.New("queue unavailable")
)
