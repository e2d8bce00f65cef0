package main

import (
	"flag"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/service"
)

func main() {
	now := time.Now().UTC()
	lastMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	var period string
	var async bool
	flag.StringVar(&period, "period", service.FormatPeriod(lastMonth), "结算周期 YYYY-MM，默认上一个自然月")
	flag.BoolVar(&async, "async", false, "投递到异步队列由 worker 执行")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if _, _, err := service.ParsePeriod(period); err != nil {
		stdLog.Fatalf("结算周期无效: %v", err)
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	container := provider.NewContainer(cfg)
	defer func() {
		_ = container.QueueClient.Close()
	}()

	if async {
		if err := container.PayoutService.EnqueueGenerate(period, "payoutctl"); err != nil {
			stdLog.Fatalf("结算任务投递失败: %v", err)
		}
		logger.Infow("payoutctl_enqueued", "period", period)
		return
	}

	payouts, err := container.PayoutService.GenerateForPeriod(period)
	if err != nil {
		stdLog.Fatalf("结算单生成失败: %v", err)
	}
	var total int64
	for _, payout := range payouts {
		total += payout.TotalAmount
	}
	logger.Infow("payoutctl_generated", "period", period, "count", len(payouts), "total_amount", total)
}
