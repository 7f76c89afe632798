package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmeter-next/internal/config"
	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"
	"github.com/chatmeter-next/internal/service"

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

	// 添加演示用户
	users := []models.User{
		{Email: "alice@example.com", DisplayName: "Alice", Plan: constants.PlanTier1, Locale: "en-US", Status: constants.UserStatusActive},
		{Email: "bob@example.com", DisplayName: "Bob", Plan: constants.PlanTier2, Locale: "en-US", Status: constants.UserStatusActive},
		{Email: "carol@example.com", DisplayName: "Carol", Plan: constants.PlanTier3, Locale: "zh-CN", Status: constants.UserStatusActive},
	}

	for _, user := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", user.Email).First(&existing).Error; err != nil {
			// 不存在则创建
			if err := models.DB.Create(&user).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", user.Email, err)
			} else {
				stdLog.Printf("Created user: %s", user.Email)
			}
		} else {
			stdLog.Printf("User already exists: %s", user.Email)
		}
	}

	// 为演示用户发放初始积分（引用号保证重复执行不重复入账）
	creditService := service.NewCreditService(repository.NewCreditRepository(models.DB), 5*time.Second)
	ctx := context.Background()
	var userList []models.User
	if err := models.DB.Where("email IN ?", []string{"alice@example.com", "bob@example.com", "carol@example.com"}).Find(&userList).Error; err != nil {
		stdLog.Printf("Failed to load users: %v", err)
	}
	for _, user := range userList {
		reference := fmt.Sprintf("seed_grant:%d", user.ID)
		amount := models.NewCreditFromDecimal(decimal.NewFromInt(10))
		if _, err := creditService.Credit(ctx, user.ID, amount, constants.CreditTxnTypeSeedGrant, reference, "initial seed balance"); err != nil {
			stdLog.Printf("Failed to grant credits to %s: %v", user.Email, err)
		} else {
			stdLog.Printf("Granted %s credits to %s", amount.String(), user.Email)
		}
	}

	// 添加演示代金券
	expiresAt := time.Now().AddDate(0, 3, 0)
	expiredAt := time.Now().AddDate(0, 0, -1)
	eligibleTier2Up, err := models.EncodePlanSet([]string{constants.PlanTier2, constants.PlanTier3})
	if err != nil {
		stdLog.Fatalf("Failed to encode plan set: %v", err)
	}
	vouchers := []models.Voucher{
		{
			Code:          "SAVE10",
			VoucherType:   constants.VoucherTypePercentage,
			Value:         models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
			MinOrderValue: models.NewMoneyFromDecimal(decimal.NewFromInt(5)),
			ExpiresAt:     &expiresAt,
			Description:   "10% off any order of 5.00 or more",
		},
		{
			Code:            "WELCOME5",
			VoucherType:     constants.VoucherTypeFixed,
			Value:           models.NewMoneyFromDecimal(decimal.NewFromInt(5)),
			MaxUses:         100,
			MultiUsePerUser: false,
			ExpiresAt:       &expiresAt,
			Description:     "5.00 off your first order",
		},
		{
			Code:          "TOPUP20",
			VoucherType:   constants.VoucherTypeCreditGrant,
			Value:         models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
			EligiblePlans: eligibleTier2Up,
			ExpiresAt:     &expiresAt,
			Description:   "20 bonus credits for tier2 and tier3 plans",
		},
		{
			Code:        "GONE",
			VoucherType: constants.VoucherTypeFixed,
			Value:       models.NewMoneyFromDecimal(decimal.NewFromInt(3)),
			MaxUses:     1,
			UsesCount:   1,
			Description: "already fully redeemed",
		},
		{
			Code:        "EXPIRED1",
			VoucherType: constants.VoucherTypePercentage,
			Value:       models.NewMoneyFromDecimal(decimal.NewFromInt(15)),
			ExpiresAt:   &expiredAt,
			Description: "expired promotional voucher",
		},
	}

	for _, voucher := range vouchers {
		var existing models.Voucher
		if err := models.DB.Where("code = ?", voucher.Code).First(&existing).Error; err != nil {
			// 不存在则创建
			if err := models.DB.Create(&voucher).Error; err != nil {
				stdLog.Printf("Failed to create voucher %s: %v", voucher.Code, err)
			} else {
				stdLog.Printf("Created voucher: %s", voucher.Code)
			}
		} else {
			stdLog.Printf("Voucher already exists: %s", voucher.Code)
		}
	}

	stdLog.Printf("Seed completed")
}
