package router

import (
	"fmt"
	"strings"

	"github.com/chatmeter-next/internal/cache"
	"github.com/chatmeter-next/internal/config"
	publichandlers "github.com/chatmeter-next/internal/http/handlers/public"
	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "cm"
	}
	redisClient := cache.Client()
	validateRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:voucher_validate", redisPrefix),
		WindowSeconds: cfg.Security.ValidateRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ValidateRateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}
	generateRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:generate", redisPrefix),
		WindowSeconds: cfg.Security.GenerateRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.GenerateRateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.POST("/voucher/validate", RateLimitMiddleware(redisClient, validateRule, KeyByUserID), publicHandler.ValidateVoucher)
			user.POST("/voucher/use", publicHandler.UseVoucher)
			user.GET("/me/credits", publicHandler.GetMyCredits)
			user.GET("/me/credits/transactions", publicHandler.GetMyCreditTransactions)
			user.GET("/me/voucher-redemptions", publicHandler.GetMyVoucherRedemptions)
			user.POST("/generate", RateLimitMiddleware(redisClient, generateRule, KeyByUserID), publicHandler.Generate)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
