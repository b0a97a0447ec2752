package constants

// 订单履约状态常量
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// 订单支付状态常量
const (
	OrderPaymentStatusPending   = "pending"
	OrderPaymentStatusCompleted = "completed"
	OrderPaymentStatusFailed    = "failed"
	OrderPaymentStatusRefunded  = "refunded"
)

// 托管交易状态常量
const (
	EscrowStatusCreated   = "created"
	EscrowStatusFunded    = "funded"
	EscrowStatusReleased  = "released"
	EscrowStatusCancelled = "cancelled"
	EscrowStatusDisputed  = "disputed"
	EscrowStatusResolved  = "resolved"
)

// 争议裁决方式常量
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
	ResolutionSplit   = "split"
)

// 优惠类型常量
const (
	DiscountTypePercentage   = "percentage"
	DiscountTypeFixed        = "fixed"
	DiscountTypeFreeShipping = "free_shipping"
	DiscountTypeLoyalty      = "loyalty"
)

// 支付处理器常量
const (
	ProcessorStripe = "stripe"
	ProcessorPaypal = "paypal"
	ProcessorMpesa  = "mpesa"
)

// 支付流水类型常量
const (
	PaymentKindCharge = "charge"
	PaymentKindRefund = "refund"
	PaymentKindPayout = "payout"
)

// 支付流水状态常量（处理器词汇归一化后）
const (
	ChargeStatusSucceeded        = "succeeded"
	ChargeStatusPending          = "pending"
	ChargeStatusRedirectRequired = "redirect_required"
	ChargeStatusFailed           = "failed"
)

// 推广目标类型常量
const (
	AffiliateTargetProduct = "product"
	AffiliateTargetExpert  = "expert"
	AffiliateTargetBundle  = "bundle"
)

// 用户角色常量
const (
	RoleUser     = "user"
	RoleExpert   = "expert"
	RoleMediator = "mediator"
	RoleAdmin    = "admin"
)

// 队列常量
const (
	QueueDefault            = "default"
	TaskEscrowExpirySweep   = "escrow:expiry_sweep"
	TaskSettlementReconcile = "settlement:reconcile"
	TaskPaymentQuery        = "payment:query"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "em"
)

// 币种常量
const (
	SiteCurrencyDefault = "USD"
)
