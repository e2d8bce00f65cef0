package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tipster-link/internal/cache"
	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/http/response"
	adminhandlers "github.com/tipster-link/internal/http/handlers/admin"
	publichandlers "github.com/tipster-link/internal/http/handlers/public"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/metrics"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "tl"
	}
	redisClient := cache.Client()
	redirectRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:redirect", redisPrefix),
		WindowSeconds: cfg.Security.RedirectRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.RedirectRateLimit.MaxRequests,
		OnLimited: func(c *gin.Context, _ int) {
			c.JSON(http.StatusTooManyRequests, publichandlers.RedirectErrorResponse{Success: false, Code: "RATE_LIMITED"})
		},
	}
	postbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:postback", redisPrefix),
		WindowSeconds: cfg.Security.PostbackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PostbackRateLimit.MaxRequests,
		OnLimited: func(c *gin.Context, waitSeconds int) {
			c.JSON(http.StatusOK, service.PostbackResult{
				Success: false,
				Error:   fmt.Sprintf("rate limited, retry in %d seconds", waitSeconds),
			})
		},
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))

	r.GET("/health", func(ctx *gin.Context) {
		if err := pingDB(c); err != nil {
			logger.Warnw("health_db_unreachable", "error", err)
			response.ServiceUnavailable(ctx, "database unavailable")
			return
		}
		response.Success(ctx, gin.H{"status": "ok", "redis": cache.Enabled(), "queue": c.QueueClient.Enabled()})
	})
	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, metrics.Handler())
	}

	// 推广链接跳转
	redirect := r.Group("/r")
	redirect.Use(RateLimitMiddleware(redisClient, redirectRule, KeyByIPAndParam("token")))
	{
		redirect.GET("/:token", publicHandler.Redirect)
		redirect.GET("/:token/info", publicHandler.GetRedirectInfo)
	}

	// 合作方转化回传
	postbackLimiter := RateLimitMiddleware(redisClient, postbackRule, KeyByIP)
	r.GET("/postback", postbackLimiter, publicHandler.Postback)
	r.POST("/postback", postbackLimiter, publicHandler.Postback)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	apiV1.Use(CORSMiddleware(cfg.CORS))
	{
		apiV1.GET("/postback", postbackLimiter, publicHandler.Postback)
		apiV1.POST("/postback", postbackLimiter, publicHandler.Postback)

		// 推广者自助接口
		promoter := apiV1.Group("/promoter")
		promoter.Use(PromoterJWTAuthMiddleware(cfg.PromoterJWT))
		{
			promoter.GET("/links", publicHandler.ListMyLinks)
			promoter.POST("/links", publicHandler.ResolveMyLink)
			promoter.GET("/payouts", publicHandler.ListMyPayouts)
			promoter.GET("/commission", publicHandler.GetMyCommission)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		admin.Use(JWTAuthMiddleware(cfg.JWT))
		{
			// 合作站点
			admin.GET("/partner-sites", adminHandler.ListPartnerSites)
			admin.POST("/partner-sites", adminHandler.CreatePartnerSite)
			admin.GET("/partner-sites/:id", adminHandler.GetPartnerSite)
			admin.PUT("/partner-sites/:id", adminHandler.UpdatePartnerSite)

			// 归因链接
			admin.GET("/links", adminHandler.ListLinks)

			// 转化
			admin.GET("/conversions", adminHandler.ListConversions)
			admin.GET("/conversions/export", adminHandler.ExportConversions)
			admin.GET("/conversions/:id", adminHandler.GetConversion)
			admin.POST("/conversions/:id/approve", adminHandler.ApproveConversion)
			admin.POST("/conversions/:id/reject", adminHandler.RejectConversion)

			// 对账导入
			admin.POST("/imports", adminHandler.CreateImport)
			admin.GET("/imports", adminHandler.ListImports)
			admin.GET("/imports/:id", adminHandler.GetImport)

			// 佣金配置
			admin.GET("/commissions/:promoter_id", adminHandler.GetCommission)
			admin.PUT("/commissions/:promoter_id", adminHandler.UpdateCommission)
			admin.GET("/commissions/:promoter_id/history", adminHandler.ListCommissionHistory)
			admin.POST("/commissions/:promoter_id/preview", adminHandler.PreviewCommission)

			// 结算
			admin.POST("/payouts/generate", adminHandler.GeneratePayouts)
			admin.GET("/payouts", adminHandler.ListPayouts)
			admin.GET("/payouts/:id", adminHandler.GetPayout)
			admin.POST("/payouts/:id/mark-paid", adminHandler.MarkPayoutPaid)
		}
	}

	return r
}

func pingDB(c *provider.Container) error {
	if c == nil || c.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
