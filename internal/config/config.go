package config

import (
	"fmt"
	"strings"

	"github.com/expertmarket/settlement/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Checkout   CheckoutConfig   `mapstructure:"checkout"`
	Escrow     EscrowConfig     `mapstructure:"escrow"`
	Commission CommissionConfig `mapstructure:"commission"`
	Affiliate  AffiliateConfig  `mapstructure:"affiliate"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Security   SecurityConfig   `mapstructure:"security"`
}

// SecurityConfig 安全相关配置
type SecurityConfig struct {
	CheckoutRateLimit RateLimitSetting `mapstructure:"checkout_rate_limit"`
	TrackRateLimit    RateLimitSetting `mapstructure:"track_rate_limit"`
}

// RateLimitSetting 固定窗口限流配置
type RateLimitSetting struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// CheckoutConfig 下单结算配置
type CheckoutConfig struct {
	TaxRatePercent        float64 `mapstructure:"tax_rate_percent"`        // 简化税率（百分比）
	ShippingFlatCents     int64   `mapstructure:"shipping_flat_cents"`     // 实体商品固定运费（分）
	IdempotencyTTLMinutes int     `mapstructure:"idempotency_ttl_minutes"` // 幂等键缓存时长
}

// EscrowConfig 托管配置
type EscrowConfig struct {
	DefaultExpiryDays    int `mapstructure:"default_expiry_days"`    // 默认托管时长
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"` // 到期扫描周期
}

// CommissionConfig 平台佣金配置
type CommissionConfig struct {
	DefaultRate float64 `mapstructure:"default_rate"` // 平台默认佣金比例（0-1）
	MaxRate     float64 `mapstructure:"max_rate"`     // 佣金比例上限
}

// AffiliateConfig 推广归因配置
type AffiliateConfig struct {
	CookieLifetimeDays      int `mapstructure:"cookie_lifetime_days"`      // 归因窗口
	ClickDedupeWindowSecond int `mapstructure:"click_dedupe_window_second"` // 点击去重窗口
}

// PaymentConfig 支付处理器配置
type PaymentConfig struct {
	TimeoutSeconds  int          `mapstructure:"timeout_seconds"`   // 处理器调用超时
	QueryMaxRetries int          `mapstructure:"query_max_retries"` // 状态查询最大重试次数
	Stripe          StripeConfig `mapstructure:"stripe"`
	Paypal          PaypalConfig `mapstructure:"paypal"`
	Mpesa           MpesaConfig  `mapstructure:"mpesa"`
}

// StripeConfig Stripe 配置
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	APIBase       string `mapstructure:"api_base"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// PaypalConfig PayPal 配置
type PaypalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	APIBase      string `mapstructure:"api_base"`
	ReturnURL    string `mapstructure:"return_url"`
	CancelURL    string `mapstructure:"cancel_url"`
}

// MpesaConfig M-Pesa 配置
type MpesaConfig struct {
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
	ShortCode      string `mapstructure:"short_code"`
	Passkey        string `mapstructure:"passkey"`
	APIBase        string `mapstructure:"api_base"`
	CallbackURL    string `mapstructure:"callback_url"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	// 设置默认值（可选）
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/settlement.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "em")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"Idempotency-Key",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("checkout.tax_rate_percent", 0)
	viper.SetDefault("checkout.shipping_flat_cents", 0)
	viper.SetDefault("checkout.idempotency_ttl_minutes", 60)
	viper.SetDefault("escrow.default_expiry_days", 30)
	viper.SetDefault("escrow.sweep_interval_minutes", 10)
	viper.SetDefault("commission.default_rate", 0.2)
	viper.SetDefault("commission.max_rate", 0.5)
	viper.SetDefault("affiliate.cookie_lifetime_days", 7)
	viper.SetDefault("affiliate.click_dedupe_window_second", 600)
	viper.SetDefault("payment.timeout_seconds", 12)
	viper.SetDefault("payment.query_max_retries", 3)
	viper.SetDefault("payment.stripe.secret_key", "")
	viper.SetDefault("payment.stripe.api_base", "https://api.stripe.com")
	viper.SetDefault("payment.stripe.webhook_secret", "")
	viper.SetDefault("payment.paypal.client_id", "")
	viper.SetDefault("payment.paypal.client_secret", "")
	viper.SetDefault("payment.paypal.api_base", "https://api-m.paypal.com")
	viper.SetDefault("payment.paypal.return_url", "")
	viper.SetDefault("payment.paypal.cancel_url", "")
	viper.SetDefault("payment.mpesa.consumer_key", "")
	viper.SetDefault("payment.mpesa.consumer_secret", "")
	viper.SetDefault("payment.mpesa.short_code", "")
	viper.SetDefault("payment.mpesa.passkey", "")
	viper.SetDefault("payment.mpesa.api_base", "https://api.safaricom.co.ke")
	viper.SetDefault("payment.mpesa.callback_url", "")
	viper.SetDefault("security.checkout_rate_limit.window_seconds", 60)
	viper.SetDefault("security.checkout_rate_limit.max_requests", 30)
	viper.SetDefault("security.track_rate_limit.window_seconds", 60)
	viper.SetDefault("security.track_rate_limit.max_requests", 120)

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
