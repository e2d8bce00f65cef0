package main

import (
	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"
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
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	sites := service.NewPartnerSiteService(repository.NewPartnerSiteRepository(models.DB))

	// 演示合作站点
	inputs := []service.PartnerSiteInput{
		{
			Slug:                    "casa-world",
			Name:                    "Casa World",
			LogoURL:                 "https://static.casa-world.example/logo.png",
			OutboundURLTemplate:     "https://casa-world.example/register?lang=es",
			TrackingParamName:       "subid",
			CommissionPerConversion: 5000,
			AllowedCountries:        []string{"ES", "PT", "MX"},
		},
		{
			Slug:                    "goal-line",
			Name:                    "Goal Line",
			LogoURL:                 "https://goal-line.example/assets/logo.svg",
			OutboundURLTemplate:     "https://goal-line.example/join",
			TrackingParamName:       "btag",
			CommissionPerConversion: 3500,
			BlockedCountries:        []string{"US", "FR"},
		},
		{
			Slug:                    "lucky-odds",
			Name:                    "Lucky Odds",
			OutboundURLTemplate:     "https://lucky-odds.example/signup?src=tipster",
			TrackingParamName:       "clickid",
			CommissionPerConversion: 2500,
		},
	}

	for _, input := range inputs {
		existing, err := sites.GetBySlug(input.Slug)
		if err == nil && existing != nil {
			stdLog.Printf("Partner site already exists: %s", input.Slug)
			continue
		}
		if _, err := sites.Create(input); err != nil {
			stdLog.Printf("Failed to create partner site %s: %v", input.Slug, err)
			continue
		}
		stdLog.Printf("Created partner site: %s", input.Slug)
	}

	stdLog.Printf("Seed completed")
}
