package provider

import (
	"github.com/expertmarket/settlement/internal/authz"
	"github.com/expertmarket/settlement/internal/cache"
	"github.com/expertmarket/settlement/internal/config"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/payment"
	"github.com/expertmarket/settlement/internal/payment/mpesa"
	"github.com/expertmarket/settlement/internal/payment/paypal"
	"github.com/expertmarket/settlement/internal/payment/stripe"
	"github.com/expertmarket/settlement/internal/queue"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config          *config.Config
	QueueClient     *queue.Client
	PaymentRegistry *payment.Registry

	// Repositories
	UserRepo           repository.UserRepository
	ProductRepo        repository.ProductRepository
	OrderRepo          repository.OrderRepository
	PaymentRepo        repository.PaymentRepository
	PromoCodeRepo      repository.PromoCodeRepository
	PromoCodeUsageRepo repository.PromoCodeUsageRepository
	LoyaltyRewardRepo  repository.LoyaltyRewardRepository
	EscrowRepo         repository.EscrowRepository
	AffiliateLinkRepo  repository.AffiliateLinkRepository
	AffiliateTrackRepo repository.AffiliateTrackingRepository

	// Services
	AuthzService      *authz.Service
	DiscountService   *service.DiscountService
	CommissionService *service.CommissionService
	AffiliateService  *service.AffiliateService
	EscrowService     *service.EscrowService
	OrderService      *service.OrderService
	PromoAdminService *service.PromoAdminService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化支付处理器注册表
	c.initPaymentRegistry()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.PromoCodeRepo = repository.NewPromoCodeRepository(db)
	c.PromoCodeUsageRepo = repository.NewPromoCodeUsageRepository(db)
	c.LoyaltyRewardRepo = repository.NewLoyaltyRewardRepository(db)
	c.EscrowRepo = repository.NewEscrowRepository(db)
	c.AffiliateLinkRepo = repository.NewAffiliateLinkRepository(db)
	c.AffiliateTrackRepo = repository.NewAffiliateTrackingRepository(db)
}

// initPaymentRegistry 按配置注册支付处理器，配置不全的渠道跳过
func (c *Container) initPaymentRegistry() {
	registry := payment.NewRegistry()

	stripeCfg := stripe.Config{
		SecretKey:  c.Config.Payment.Stripe.SecretKey,
		APIBaseURL: c.Config.Payment.Stripe.APIBase,
	}
	if err := stripe.ValidateConfig(&stripeCfg); err != nil {
		logger.Warnw("provider_payment_channel_skipped", "channel", "stripe", "error", err)
	} else {
		registry.Register(stripe.New(stripeCfg))
	}

	paypalCfg := paypal.Config{
		ClientID:     c.Config.Payment.Paypal.ClientID,
		ClientSecret: c.Config.Payment.Paypal.ClientSecret,
		APIBaseURL:   c.Config.Payment.Paypal.APIBase,
		ReturnURL:    c.Config.Payment.Paypal.ReturnURL,
		CancelURL:    c.Config.Payment.Paypal.CancelURL,
	}
	if err := paypal.ValidateConfig(&paypalCfg); err != nil {
		logger.Warnw("provider_payment_channel_skipped", "channel", "paypal", "error", err)
	} else {
		registry.Register(paypal.New(paypalCfg))
	}

	mpesaCfg := mpesa.Config{
		ConsumerKey:    c.Config.Payment.Mpesa.ConsumerKey,
		ConsumerSecret: c.Config.Payment.Mpesa.ConsumerSecret,
		ShortCode:      c.Config.Payment.Mpesa.ShortCode,
		Passkey:        c.Config.Payment.Mpesa.Passkey,
		APIBaseURL:     c.Config.Payment.Mpesa.APIBase,
		CallbackURL:    c.Config.Payment.Mpesa.CallbackURL,
	}
	if err := mpesa.ValidateConfig(&mpesaCfg); err != nil {
		logger.Warnw("provider_payment_channel_skipped", "channel", "mpesa", "error", err)
	} else {
		registry.Register(mpesa.New(mpesaCfg))
	}

	if len(registry.Names()) == 0 {
		logger.Warnw("provider_payment_registry_empty")
	}
	c.PaymentRegistry = registry
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.DiscountService = service.NewDiscountService(c.PromoCodeRepo, c.PromoCodeUsageRepo, c.LoyaltyRewardRepo)
	c.CommissionService = service.NewCommissionService(c.Config.Commission.DefaultRate, c.Config.Commission.MaxRate)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateLinkRepo, c.AffiliateTrackRepo, c.Config.Affiliate.CookieLifetimeDays, c.Config.Affiliate.ClickDedupeWindowSecond, c.Config.Commission.MaxRate)
	c.EscrowService = service.NewEscrowService(c.EscrowRepo, c.PaymentRepo, c.UserRepo, c.PaymentRegistry, c.Config.Escrow.DefaultExpiryDays, "USD")
	c.OrderService = service.NewOrderService(
		c.OrderRepo,
		c.ProductRepo,
		c.PromoCodeRepo,
		c.PromoCodeUsageRepo,
		c.LoyaltyRewardRepo,
		c.PaymentRepo,
		c.DiscountService,
		c.CommissionService,
		c.AffiliateService,
		c.EscrowService,
		c.PaymentRegistry,
		c.QueueClient,
		service.OrderServiceConfig{
			TaxRatePercent:        c.Config.Checkout.TaxRatePercent,
			ShippingFlatCents:     c.Config.Checkout.ShippingFlatCents,
			IdempotencyTTLMinutes: c.Config.Checkout.IdempotencyTTLMinutes,
			Currency:              "USD",
			QueryMaxRetries:       c.Config.Payment.QueryMaxRetries,
		},
	)
	c.PromoAdminService = service.NewPromoAdminService(c.PromoCodeRepo, c.LoyaltyRewardRepo, c.UserRepo)
}
