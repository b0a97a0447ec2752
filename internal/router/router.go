package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expertmarket/settlement/internal/authz"
	"github.com/expertmarket/settlement/internal/cache"
	"github.com/expertmarket/settlement/internal/config"
	adminhandlers "github.com/expertmarket/settlement/internal/http/handlers/admin"
	publichandlers "github.com/expertmarket/settlement/internal/http/handlers/public"
	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "em"
	}
	redisClient := cache.Client()
	checkoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:checkout", redisPrefix),
		WindowSeconds: cfg.Security.CheckoutRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CheckoutRateLimit.MaxRequests,
	}
	trackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:track", redisPrefix),
		WindowSeconds: cfg.Security.TrackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.TrackRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 推广点击上报（匿名会话也要计数，不走鉴权）
		apiV1.POST("/affiliate/track", RateLimitMiddleware(redisClient, trackRule, KeyByIP), publicHandler.TrackAffiliateClick)

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.UserRepo))
		{
			user.POST("/checkout", RateLimitMiddleware(redisClient, checkoutRule, KeyByIP), publicHandler.Checkout)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.POST("/orders/:id/cancel", publicHandler.CancelOrder)

			user.POST("/promo-codes/validate", publicHandler.ValidatePromo)
			user.POST("/promo-codes/apply", publicHandler.ApplyPromoPreview)

			user.POST("/escrows", publicHandler.CreateEscrow)
			user.GET("/escrows", publicHandler.ListEscrowTransactions)
			user.GET("/escrows/:id", publicHandler.GetEscrow)
			user.POST("/escrows/:id/fund", publicHandler.FundEscrow)
			user.POST("/escrows/:id/release", publicHandler.ReleaseEscrow)
			user.POST("/escrows/:id/cancel", publicHandler.CancelEscrow)
			user.POST("/escrows/:id/dispute", publicHandler.DisputeEscrow)

			user.POST("/affiliate/links", publicHandler.CreateAffiliateLink)
			user.GET("/affiliate/links", publicHandler.ListAffiliateLinks)
			user.GET("/affiliate/links/:id", publicHandler.GetAffiliateLink)
			user.PUT("/affiliate/links/:id", publicHandler.UpdateAffiliateLink)
			user.DELETE("/affiliate/links/:id", publicHandler.DeleteAffiliateLink)
			user.POST("/affiliate/associate", publicHandler.AssociateAffiliateSession)
			user.GET("/affiliate/earnings", publicHandler.GetAffiliateEarnings)
		}

		// 管理端接口（JWT + RBAC）
		admin := apiV1.Group("/admin")
		admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.UserRepo), AdminRBACMiddleware(c.AuthzService))
		{
			// 优惠码与忠诚度
			admin.GET("/promo-codes", adminHandler.ListPromoCodes)
			admin.POST("/promo-codes", adminHandler.CreatePromoCode)
			admin.PUT("/promo-codes/:id", adminHandler.UpdatePromoCode)
			admin.DELETE("/promo-codes/:id", adminHandler.DeletePromoCode)
			admin.GET("/loyalty-rewards", adminHandler.ListLoyaltyRewards)
			admin.POST("/loyalty-rewards", adminHandler.IssueLoyaltyReward)

			// 托管仲裁
			admin.GET("/escrows", adminHandler.ListEscrows)
			admin.GET("/escrows/:id", adminHandler.GetEscrow)
			admin.POST("/escrows/:id/resolve", adminHandler.ResolveDispute)

			// 订单与支付
			admin.GET("/orders", adminHandler.ListOrders)
			admin.GET("/orders/:id", adminHandler.GetOrder)
			admin.PATCH("/orders/:id/status", adminHandler.TransitionOrderStatus)
			admin.GET("/payments", adminHandler.ListPayments)

			// 权限管理
			admin.GET("/authz/roles", adminHandler.ListRoles)
			admin.DELETE("/authz/roles/:role", adminHandler.DeleteRole)
			admin.GET("/authz/roles/:role/policies", adminHandler.GetRolePolicies)
			admin.POST("/authz/policies", adminHandler.GrantRolePolicy)
			admin.DELETE("/authz/policies", adminHandler.RevokeRolePolicy)
			admin.GET("/authz/users/:id/roles", adminHandler.GetUserRoles)
			admin.PUT("/authz/users/:id/roles", adminHandler.SetUserRoles)
			admin.GET("/authz/users/:id/policies", adminHandler.GetUserPolicies)
			admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminPermissionCatalog(r))
			})
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
