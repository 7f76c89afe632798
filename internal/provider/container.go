package provider

import (
	"time"

	"github.com/chatmeter-next/internal/aiprovider"
	"github.com/chatmeter-next/internal/cache"
	"github.com/chatmeter-next/internal/config"
	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/queue"
	"github.com/chatmeter-next/internal/repository"
	"github.com/chatmeter-next/internal/service"

	"github.com/shopspring/decimal"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo       repository.UserRepository
	VoucherRepo    repository.VoucherRepository
	RedemptionRepo repository.VoucherRedemptionRepository
	CreditRepo     repository.CreditRepository
	ChargeRepo     repository.GenerationChargeRepository

	// Services
	UserAuthService   *service.UserAuthService
	CreditService     *service.CreditService
	VoucherService    *service.VoucherService
	SettlementService *service.SettlementService
	GenerationService *service.GenerationService
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

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.VoucherRepo = repository.NewVoucherRepository(db)
	c.RedemptionRepo = repository.NewVoucherRedemptionRepository(db)
	c.CreditRepo = repository.NewCreditRepository(db)
	c.ChargeRepo = repository.NewGenerationChargeRepository(db)
}

func (c *Container) initServices() {
	gen := &c.Config.Generation

	c.UserAuthService = service.NewUserAuthService(c.Config)

	storeTimeout := time.Duration(gen.StoreTimeoutMS) * time.Millisecond
	c.CreditService = service.NewCreditService(c.CreditRepo, storeTimeout)

	cacheTTL := time.Duration(gen.VoucherCacheSeconds) * time.Second
	c.VoucherService = service.NewVoucherService(c.VoucherRepo, c.RedemptionRepo, c.CreditService, cacheTTL)

	lowThreshold := parseDecimalSetting(gen.LowCreditThreshold, "0.01", "low_credit_threshold")
	reservationTTL := time.Duration(gen.ReservationTTLSeconds) * time.Second
	c.SettlementService = service.NewSettlementService(c.CreditService, c.ChargeRepo, lowThreshold, reservationTTL)

	var aiProvider aiprovider.Provider
	if gen.ProviderBaseURL != "" && gen.ProviderAPIKey != "" {
		p, err := aiprovider.NewHTTPProvider(&aiprovider.Config{
			BaseURL: gen.ProviderBaseURL,
			APIKey:  gen.ProviderAPIKey,
			Timeout: time.Duration(gen.ProviderTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			logger.Errorw("provider_init_aiprovider_failed", "error", err)
		} else {
			aiProvider = p
		}
	} else {
		logger.Warnw("provider_aiprovider_not_configured")
	}

	unitPrice := parseDecimalSetting(gen.UnitPricePerKiloToken, "0.002", "unit_price_per_ktoken")
	c.GenerationService = service.NewGenerationService(c.SettlementService, aiProvider, c.QueueClient, unitPrice)
}

func parseDecimalSetting(raw, fallback, name string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Warnw("provider_decimal_setting_invalid", "name", name, "value", raw)
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}
