package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tipster-link/internal/cache"
	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/metrics"

	"github.com/oschwald/geoip2-golang"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	geoSourceHeader  = "header"
	geoSourceCache   = "cache"
	geoSourceUnknown = "unknown"
	geoDefaultTTL    = 24 * time.Hour
	geoLocalMaxSize  = 50000
)

// CountryLocator 根据 IP 识别国家码（ISO 3166 alpha-2，大写）
type CountryLocator interface {
	Name() string
	Lookup(ctx context.Context, ip string) (string, error)
}

// MaxMindLocator 基于本地 mmdb 的国家识别
type MaxMindLocator struct {
	reader *geoip2.Reader
}

// NewMaxMindLocator 打开 MaxMind 国家库
func NewMaxMindLocator(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb failed: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Name 识别来源名称
func (l *MaxMindLocator) Name() string {
	return "maxmind"
}

// Lookup 查询国家码
func (l *MaxMindLocator) Lookup(_ context.Context, ip string) (string, error) {
	if l == nil || l.reader == nil {
		return "", nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", nil
	}
	record, err := l.reader.Country(parsed)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Close 关闭 mmdb
func (l *MaxMindLocator) Close() error {
	if l == nil || l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

// HTTPLocator 通过外部 HTTP 服务识别国家（响应体需包含 countryCode 字段）
type HTTPLocator struct {
	urlTemplate string
	client      *http.Client
}

// NewHTTPLocator 创建 HTTP 国家识别器，urlTemplate 中的 %s 替换为 IP
func NewHTTPLocator(urlTemplate string, timeout time.Duration) *HTTPLocator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPLocator{
		urlTemplate: strings.TrimSpace(urlTemplate),
		client:      &http.Client{Timeout: timeout},
	}
}

// Name 识别来源名称
func (l *HTTPLocator) Name() string {
	return "http"
}

// Lookup 查询国家码
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) (string, error) {
	if l == nil || l.urlTemplate == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(l.urlTemplate, ip), nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("geo lookup status %d", resp.StatusCode)
	}
	var body struct {
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(body.CountryCode)), nil
}

// GeoService 访客国家识别：进程内缓存 -> Redis -> 识别器链，任何失败都视为未知国家
type GeoService struct {
	locators []CountryLocator
	local    *xsync.Map[string, geoEntry]
	ttl      time.Duration
	maxSize  int
	now      func() time.Time
}

type geoEntry struct {
	code      string
	expiresAt time.Time
}

// NewGeoService 创建国家识别服务
func NewGeoService(ttl time.Duration, locators ...CountryLocator) *GeoService {
	if ttl <= 0 {
		ttl = geoDefaultTTL
	}
	active := make([]CountryLocator, 0, len(locators))
	for _, locator := range locators {
		if locator != nil {
			active = append(active, locator)
		}
	}
	return &GeoService{
		locators: active,
		local:    xsync.NewMap[string, geoEntry](),
		ttl:      ttl,
		maxSize:  geoLocalMaxSize,
		now:      time.Now,
	}
}

// NewGeoServiceFromConfig 按配置装配识别器链：mmdb 优先，HTTP 兜底
func NewGeoServiceFromConfig(cfg config.GeoConfig) *GeoService {
	locators := make([]CountryLocator, 0, 2)
	if path := strings.TrimSpace(cfg.MMDBPath); path != "" {
		locator, err := NewMaxMindLocator(path)
		if err != nil {
			logger.Warnw("geo_mmdb_open_failed", "path", path, "error", err)
		} else {
			locators = append(locators, locator)
		}
	}
	if lookupURL := strings.TrimSpace(cfg.LookupURL); lookupURL != "" {
		locators = append(locators, NewHTTPLocator(lookupURL, time.Duration(cfg.TimeoutMS)*time.Millisecond))
	}
	return NewGeoService(time.Duration(cfg.CacheTTLSeconds)*time.Second, locators...)
}

// Resolve 识别国家码；headerCountry 为受信任代理注入的国家头
func (s *GeoService) Resolve(ctx context.Context, rawIP, headerCountry string) string {
	if code := NormalizeCountryCode(headerCountry); code != "" {
		metrics.ObserveGeoLookup(geoSourceHeader)
		return code
	}
	ip := NormalizeClientIP(rawIP)
	if ip == "" || s == nil {
		return ""
	}
	if code, ok := s.loadLocal(ip); ok {
		return code
	}
	if code, hit, err := cache.GetGeoCountry(ctx, ip); err != nil {
		logger.Debugw("geo_cache_read_failed", "ip", ip, "error", err)
	} else if hit {
		s.storeLocal(ip, code)
		metrics.ObserveGeoLookup(geoSourceCache)
		return code
	}

	code, source := s.lookup(ctx, ip)
	metrics.ObserveGeoLookup(source)
	// 识别失败不缓存，下次仍可重试
	if source != geoSourceUnknown {
		s.storeLocal(ip, code)
		if err := cache.SetGeoCountry(ctx, ip, code, s.ttl); err != nil {
			logger.Debugw("geo_cache_write_failed", "ip", ip, "error", err)
		}
	}
	return code
}

func (s *GeoService) loadLocal(ip string) (string, bool) {
	entry, ok := s.local.Load(ip)
	if !ok {
		return "", false
	}
	if !s.now().Before(entry.expiresAt) {
		s.local.Delete(ip)
		return "", false
	}
	return entry.code, true
}

// storeLocal 写入进程内缓存，超过容量时先清理过期项，仍超限则整体清空
func (s *GeoService) storeLocal(ip, code string) {
	now := s.now()
	if s.maxSize > 0 && s.local.Size() >= s.maxSize {
		s.local.Range(func(key string, entry geoEntry) bool {
			if !now.Before(entry.expiresAt) {
				s.local.Delete(key)
			}
			return true
		})
		if s.local.Size() >= s.maxSize {
			s.local.Clear()
		}
	}
	s.local.Store(ip, geoEntry{code: code, expiresAt: now.Add(s.ttl)})
}

func (s *GeoService) lookup(ctx context.Context, ip string) (string, string) {
	for _, locator := range s.locators {
		code, err := locator.Lookup(ctx, ip)
		if err != nil {
			logger.Warnw("geo_lookup_failed", "source", locator.Name(), "ip", ip, "error", err)
			continue
		}
		if normalized := NormalizeCountryCode(code); normalized != "" {
			return normalized, locator.Name()
		}
	}
	return "", geoSourceUnknown
}

// NormalizeClientIP 去除 IPv4 映射前缀，回环/私有/非法地址返回空串
func NormalizeClientIP(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(strings.ToLower(trimmed), "::ffff:")
	if host, _, err := net.SplitHostPort(trimmed); err == nil {
		trimmed = host
	}
	parsed := net.ParseIP(trimmed)
	if parsed == nil {
		return ""
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return ""
	}
	return parsed.String()
}

// NormalizeCountryCode 规范化国家码，非两位字母（含 XX 等占位）返回空串
func NormalizeCountryCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !countryCodePattern.MatchString(code) || code == "XX" {
		return ""
	}
	return code
}
