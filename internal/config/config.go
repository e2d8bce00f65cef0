package config

import (
	"fmt"
	"strings"

	"github.com/tipster-link/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Log         LogConfig        `mapstructure:"log"`
	Database    DatabaseConfig   `mapstructure:"database"`
	JWT         JWTConfig        `mapstructure:"jwt"`
	PromoterJWT JWTConfig        `mapstructure:"promoter_jwt"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Queue       QueueConfig      `mapstructure:"queue"`
	CORS        CORSConfig       `mapstructure:"cors"`
	Security    SecurityConfig   `mapstructure:"security"`
	Geo         GeoConfig        `mapstructure:"geo"`
	Commission  CommissionConfig `mapstructure:"commission"`
	Conversion  ConversionConfig `mapstructure:"conversion"`
	Import      ImportConfig     `mapstructure:"import"`
	Payout      PayoutConfig     `mapstructure:"payout"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                string `mapstructure:"host"`
	Port                string `mapstructure:"port"`
	Mode                string `mapstructure:"mode"` // debug / release
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Service    string `mapstructure:"service"`
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
		Level:      c.Level,
		Service:    c.Service,
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

// JWTConfig JWT 配置（签发由外部身份服务完成，本服务只校验）
type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
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

// SecurityConfig 安全配置
type SecurityConfig struct {
	PostbackRateLimit RateLimitConfig `mapstructure:"postback_rate_limit"`
	RedirectRateLimit RateLimitConfig `mapstructure:"redirect_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// GeoConfig 访客国家识别配置
type GeoConfig struct {
	MMDBPath        string `mapstructure:"mmdb_path"`
	LookupURL       string `mapstructure:"lookup_url"`
	TimeoutMS       int    `mapstructure:"timeout_ms"`
	CountryHeader   string `mapstructure:"country_header"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// CommissionConfig 平台费率配置
type CommissionConfig struct {
	StandardPercent     float64 `mapstructure:"standard_percent"`
	HighVolumePercent   float64 `mapstructure:"high_volume_percent"`
	HighVolumeThreshold int64   `mapstructure:"high_volume_threshold"`
	PayoutChannel       string  `mapstructure:"payout_channel"`
}

// ConversionConfig 转化接入配置
type ConversionConfig struct {
	AutoApproveDefault bool `mapstructure:"auto_approve_default"`
	ErrorReportLimit   int  `mapstructure:"error_report_limit"`
}

// ImportConfig 对账导入配置
type ImportConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	AsyncRowThreshold int `mapstructure:"async_row_threshold"`
}

// PayoutConfig 结算配置
type PayoutConfig struct {
	Currency string `mapstructure:"currency"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 注册全部默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout_seconds", 10)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("log.level", "")
	v.SetDefault("log.service", "tipster-link")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/tipster.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("promoter_jwt.secret", "promoter-change-me-in-production")
	v.SetDefault("promoter_jwt.issuer", "")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tl")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.postback_rate_limit.window_seconds", 60)
	v.SetDefault("security.postback_rate_limit.max_requests", 600)
	v.SetDefault("security.redirect_rate_limit.window_seconds", 60)
	v.SetDefault("security.redirect_rate_limit.max_requests", 120)
	v.SetDefault("geo.mmdb_path", "")
	v.SetDefault("geo.lookup_url", "http://ip-api.com/json/%s?fields=countryCode")
	v.SetDefault("geo.timeout_ms", 3000)
	v.SetDefault("geo.country_header", "")
	v.SetDefault("geo.cache_ttl_seconds", 86400)
	v.SetDefault("commission.standard_percent", 10)
	v.SetDefault("commission.high_volume_percent", 7)
	v.SetDefault("commission.high_volume_threshold", 10000000)
	v.SetDefault("commission.payout_channel", "default")
	v.SetDefault("conversion.auto_approve_default", false)
	v.SetDefault("conversion.error_report_limit", 10)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.async_row_threshold", 500)
	v.SetDefault("payout.currency", "EUR")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从 .env 与 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugw("dotenv_not_loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹
	SetDefaults(v)

	// 环境变量支持（例如 server.port -> SERVER_PORT）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return &cfg
}

// Default 返回仅包含默认值的配置，用于测试与工具命令
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("默认配置解析失败: %w", err))
	}
	return &cfg
}
