package main

import (
	"time"

	"github.com/expertmarket/settlement/internal/config"
	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加用户
	users := []models.User{
		{Email: "admin@expertmarket.local", Role: constants.RoleAdmin, IsActive: true},
		{Email: "mediator@expertmarket.local", Role: constants.RoleMediator, IsActive: true},
		{Email: "expert@expertmarket.local", Role: constants.RoleExpert, IsActive: true},
		{Email: "buyer@expertmarket.local", Role: constants.RoleUser, IsActive: true},
	}
	userIDs := map[string]uint{}
	for _, user := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", user.Email).First(&existing).Error; err != nil {
			created := user
			if err := models.DB.Create(&created).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", user.Email, err)
				continue
			}
			stdLog.Printf("Created user: %s (%s)", created.Email, created.Role)
			userIDs[created.Role] = created.ID
		} else {
			stdLog.Printf("User already exists: %s", existing.Email)
			userIDs[existing.Role] = existing.ID
		}
	}
	expertID := userIDs[constants.RoleExpert]

	// 添加商品
	customRate := decimal.NewFromFloat(0.15)
	products := []models.Product{
		{
			ExpertID: expertID,
			TitleJSON: models.JSON(map[string]interface{}{
				"en-US": "1:1 Consulting Session (60 min)",
				"zh-CN": "一对一咨询（60 分钟）",
			}),
			Price:     models.NewMoneyFromDecimal(decimal.NewFromFloat(149.00)),
			IsDigital: true,
			IsActive:  true,
		},
		{
			ExpertID: expertID,
			TitleJSON: models.JSON(map[string]interface{}{
				"en-US": "Code Review Package",
				"zh-CN": "代码评审套餐",
			}),
			Price:          models.NewMoneyFromDecimal(decimal.NewFromFloat(299.00)),
			IsDigital:      true,
			CommissionRate: &customRate,
			IsActive:       true,
		},
		{
			ExpertID: expertID,
			TitleJSON: models.JSON(map[string]interface{}{
				"en-US": "Printed Architecture Handbook",
				"zh-CN": "架构手册（实体书）",
			}),
			Price:     models.NewMoneyFromDecimal(decimal.NewFromFloat(59.00)),
			IsDigital: false,
			IsActive:  true,
		},
	}
	for i := range products {
		product := &products[i]
		var count int64
		models.DB.Model(&models.Product{}).
			Where("expert_id = ? AND title_json = ?", product.ExpertID, product.TitleJSON).
			Count(&count)
		if count > 0 {
			stdLog.Printf("Product already exists: #%d", i+1)
			continue
		}
		if err := models.DB.Create(product).Error; err != nil {
			stdLog.Printf("Failed to create product: %v", err)
		} else {
			stdLog.Printf("Created product: %d", product.ID)
		}
	}

	// 添加优惠码
	endsAt := time.Now().AddDate(0, 3, 0)
	promoCodes := []models.PromoCode{
		{
			Code:         "WELCOME15",
			Type:         constants.DiscountTypePercentage,
			Value:        models.NewMoneyFromCents(1500), // 15%
			MaxDiscount:  models.NewMoneyFromCents(5000),
			PerUserLimit: 1,
			EndsAt:       &endsAt,
			IsActive:     true,
		},
		{
			Code:        "SAVE10",
			Type:        constants.DiscountTypeFixed,
			Value:       models.NewMoneyFromCents(1000),
			MinPurchase: models.NewMoneyFromCents(5000),
			UsageLimit:  100,
			IsActive:    true,
		},
		{
			Code:     "FREESHIP",
			Type:     constants.DiscountTypeFreeShipping,
			IsActive: true,
		},
	}
	for _, promo := range promoCodes {
		var existing models.PromoCode
		if err := models.DB.Where("code = ?", promo.Code).First(&existing).Error; err != nil {
			created := promo
			if err := models.DB.Create(&created).Error; err != nil {
				stdLog.Printf("Failed to create promo code %s: %v", promo.Code, err)
			} else {
				stdLog.Printf("Created promo code: %s", created.Code)
			}
		} else {
			stdLog.Printf("Promo code already exists: %s", existing.Code)
		}
	}

	stdLog.Printf("Seed finished")
}
