package provider

import (
	"github.com/tipster-link/internal/cache"
	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	PartnerSiteRepo repository.PartnerSiteRepository
	LinkRepo        repository.AttributionLinkRepository
	ClickRepo       repository.ClickEventRepository
	ConversionRepo  repository.ConversionRepository
	CommissionRepo  repository.CommissionRepository
	PayoutRepo      repository.PayoutRepository
	ImportBatchRepo repository.ImportBatchRepository

	// Services
	GeoService         *service.GeoService
	PartnerSiteService *service.PartnerSiteService
	LinkService        *service.LinkService
	ClickService       *service.ClickService
	CommissionService  *service.CommissionService
	ConversionService  *service.ConversionService
	BatchImportService *service.BatchImportService
	PayoutService      *service.PayoutService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端，未启用时为空操作客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	return NewContainerWithDB(cfg, models.DB, queueClient)
}

// NewContainerWithDB 使用指定数据库与队列客户端装配，测试与工具命令复用
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.PartnerSiteRepo = repository.NewPartnerSiteRepository(db)
	c.LinkRepo = repository.NewAttributionLinkRepository(db)
	c.ClickRepo = repository.NewClickEventRepository(db)
	c.ConversionRepo = repository.NewConversionRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.ImportBatchRepo = repository.NewImportBatchRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.GeoService = service.NewGeoServiceFromConfig(cfg.Geo)
	c.PartnerSiteService = service.NewPartnerSiteService(c.PartnerSiteRepo)
	c.LinkService = service.NewLinkService(c.LinkRepo, c.PartnerSiteRepo)
	c.ClickService = service.NewClickService(c.LinkRepo, c.ClickRepo, c.PartnerSiteRepo, c.PartnerSiteService, c.GeoService)
	c.CommissionService = service.NewCommissionService(
		c.CommissionRepo,
		c.ConversionRepo,
		service.NewCommissionRates(cfg.Commission),
		cfg.Commission.PayoutChannel,
	)
	c.ConversionService = service.NewConversionService(
		c.ConversionRepo,
		c.LinkRepo,
		c.PartnerSiteRepo,
		c.ClickRepo,
		c.CommissionService,
		cfg.Conversion,
	)
	c.BatchImportService = service.NewBatchImportService(
		c.ImportBatchRepo,
		c.PartnerSiteRepo,
		c.LinkRepo,
		c.ConversionService,
		c.QueueClient,
		cfg.Import,
		cfg.Conversion.ErrorReportLimit,
	)
	c.PayoutService = service.NewPayoutService(c.PayoutRepo, c.ConversionRepo, c.QueueClient, cfg.Payout.Currency)
}
