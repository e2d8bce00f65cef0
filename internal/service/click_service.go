package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tipster-link/internal/cache"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/metrics"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"

	"gorm.io/gorm"
)

const (
	maxUserAgentLength = 1024
	maxReferrerLength  = 1024
)

// CountryResolver 访客国家识别，失败时返回空串
type CountryResolver interface {
	Resolve(ctx context.Context, rawIP, headerCountry string) string
}

// VisitorContext 点击访客上下文
type VisitorContext struct {
	IP            string
	HeaderCountry string
	UserAgent     string
	Referrer      string
}

// ClickResult 点击处理结果
type ClickResult struct {
	Allowed      bool
	OutboundURL  string
	BlockReason  string
	CountryCode  string
	ClickID      uint
	Link         *models.AttributionLink
	PartnerSite  *models.PartnerSite
	Alternatives []PartnerAlternative
}

// LinkInfo 跳转令牌公开信息
type LinkInfo struct {
	RedirectToken string `json:"redirect_token"`
	PartnerName   string `json:"partner_name"`
	PartnerSlug   string `json:"partner_slug"`
	LogoURL       string `json:"logo_url"`
	Active        bool   `json:"active"`
}

// ClickService 点击记录服务
type ClickService struct {
	linkRepo    repository.AttributionLinkRepository
	clickRepo   repository.ClickEventRepository
	siteRepo    repository.PartnerSiteRepository
	siteService *PartnerSiteService
	geo         CountryResolver
}

// NewClickService 创建点击记录服务
func NewClickService(
	linkRepo repository.AttributionLinkRepository,
	clickRepo repository.ClickEventRepository,
	siteRepo repository.PartnerSiteRepository,
	siteService *PartnerSiteService,
	geo CountryResolver,
) *ClickService {
	return &ClickService{
		linkRepo:    linkRepo,
		clickRepo:   clickRepo,
		siteRepo:    siteRepo,
		siteService: siteService,
		geo:         geo,
	}
}

// RecordClick 处理一次跳转点击：地域判定、构造跳转地址、落库并累加计数
func (s *ClickService) RecordClick(ctx context.Context, token string, visitor VisitorContext) (*ClickResult, error) {
	link, site, err := s.loadLink(ctx, token)
	if err != nil {
		return nil, err
	}

	country := ""
	if s.geo != nil {
		country = s.geo.Resolve(ctx, visitor.IP, visitor.HeaderCountry)
	}

	result := &ClickResult{
		Allowed:     true,
		CountryCode: country,
		Link:        link,
		PartnerSite: site,
	}
	if reason := geoBlockReason(site, country); reason != "" {
		result.Allowed = false
		result.BlockReason = reason
	} else {
		outbound, err := BuildOutboundURL(site.OutboundURLTemplate, site.TrackingParamName, link.PromoterID)
		if err != nil {
			logger.Errorw("click_outbound_url_build_failed", "link_id", link.ID, "partner_site_id", site.ID, "error", err)
			return nil, err
		}
		result.OutboundURL = outbound
	}

	event := &models.ClickEvent{
		PromoterID:    link.PromoterID,
		PartnerSiteID: site.ID,
		LinkID:        link.ID,
		IPAddress:     strings.TrimPrefix(strings.TrimSpace(visitor.IP), "::ffff:"),
		CountryCode:   country,
		UserAgent:     truncateString(visitor.UserAgent, maxUserAgentLength),
		Referrer:      truncateString(visitor.Referrer, maxReferrerLength),
		WasBlocked:    !result.Allowed,
		BlockReason:   result.BlockReason,
		OutboundURL:   result.OutboundURL,
	}
	err = s.linkRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.clickRepo.WithTx(tx).Create(event); err != nil {
			return err
		}
		if !result.Allowed {
			return nil
		}
		return s.linkRepo.WithTx(tx).AtomicIncrement(link.ID, repository.LinkCounterClicks, 1)
	})
	if err != nil {
		logger.Errorw("click_persist_failed", "link_id", link.ID, "error", err)
		return nil, err
	}
	result.ClickID = event.ID

	if result.Allowed {
		metrics.ObserveClick(metrics.ClickAllowed)
	} else {
		metrics.ObserveClick(metrics.ClickBlocked)
		if s.siteService != nil {
			alternatives, altErr := s.siteService.ListAlternatives(country, site.ID)
			if altErr != nil {
				logger.Warnw("click_alternatives_failed", "partner_site_id", site.ID, "country_code", country, "error", altErr)
			}
			result.Alternatives = alternatives
		}
	}
	logger.Infow("click_recorded",
		"click_id", event.ID,
		"link_id", link.ID,
		"promoter_id", link.PromoterID,
		"partner_site_id", site.ID,
		"country_code", country,
		"allowed", result.Allowed,
		"block_reason", result.BlockReason,
	)
	return result, nil
}

// Info 返回令牌对应的站点信息，不记录点击
func (s *ClickService) Info(ctx context.Context, token string) (*LinkInfo, error) {
	link, err := s.linkRepo.FindByToken(token)
	if err != nil {
		return nil, err
	}
	if link == nil || link.PartnerSite == nil {
		return nil, ErrLinkNotFound
	}
	s.rememberLink(ctx, link)
	return &LinkInfo{
		RedirectToken: link.RedirectToken,
		PartnerName:   link.PartnerSite.Name,
		PartnerSlug:   link.PartnerSite.Slug,
		LogoURL:       link.PartnerSite.LogoURL,
		Active:        link.PartnerSite.IsActive(),
	}, nil
}

func (s *ClickService) loadLink(ctx context.Context, token string) (*models.AttributionLink, *models.PartnerSite, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return nil, nil, ErrLinkNotFound
	}

	var link *models.AttributionLink
	var site *models.PartnerSite
	snapshot, err := cache.GetLinkSnapshot(ctx, normalized)
	if err != nil {
		logger.Debugw("click_link_cache_read_failed", "redirect_token", normalized, "error", err)
	}
	if snapshot != nil {
		site, err = s.siteRepo.GetByID(snapshot.PartnerSiteID)
		if err != nil {
			return nil, nil, err
		}
		link = &models.AttributionLink{
			ID:            snapshot.LinkID,
			PromoterID:    snapshot.PromoterID,
			PartnerSiteID: snapshot.PartnerSiteID,
			RedirectToken: normalized,
		}
	} else {
		link, err = s.linkRepo.FindByToken(normalized)
		if err != nil {
			return nil, nil, err
		}
		if link == nil {
			return nil, nil, ErrLinkNotFound
		}
		site = link.PartnerSite
		s.rememberLink(ctx, link)
	}
	if site == nil {
		return nil, nil, ErrLinkNotFound
	}
	if !site.IsActive() {
		return nil, nil, ErrPartnerSiteInactive
	}
	return link, site, nil
}

func (s *ClickService) rememberLink(ctx context.Context, link *models.AttributionLink) {
	if link == nil {
		return
	}
	if err := cache.SetLinkSnapshot(ctx, link.RedirectToken, cache.LinkSnapshot{
		LinkID:        link.ID,
		PromoterID:    link.PromoterID,
		PartnerSiteID: link.PartnerSiteID,
	}); err != nil {
		logger.Debugw("click_link_cache_write_failed", "redirect_token", link.RedirectToken, "error", err)
	}
}

// geoBlockReason 返回拦截原因，放行时为空串
func geoBlockReason(site *models.PartnerSite, country string) string {
	if site == nil || country == "" {
		return ""
	}
	if len(site.AllowedCountries) > 0 && !site.AllowedCountries.Contains(country) {
		return fmt.Sprintf("%s is not available in your country (%s)", site.Name, country)
	}
	if site.BlockedCountries.Contains(country) {
		return fmt.Sprintf("%s is blocked in your country (%s)", site.Name, country)
	}
	return ""
}

// BuildOutboundURL 在站点模板上设置跟踪参数为推广者ID
func BuildOutboundURL(template, param, promoterID string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(template))
	if err != nil || parsed.Host == "" {
		return "", ErrOutboundURLBuild
	}
	param = strings.TrimSpace(param)
	if param == "" {
		return "", ErrOutboundURLBuild
	}
	query := parsed.Query()
	query.Set(param, promoterID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func truncateString(raw string, limit int) string {
	trimmed := strings.TrimSpace(raw)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	for len(string(runes)) > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
