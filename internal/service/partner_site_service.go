package service

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
)

const maxAlternativeSites = 5

var (
	partnerSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)
)

// PartnerSiteService 合作站点登记服务
type PartnerSiteService struct {
	repo repository.PartnerSiteRepository
}

// NewPartnerSiteService 创建合作站点服务
func NewPartnerSiteService(repo repository.PartnerSiteRepository) *PartnerSiteService {
	return &PartnerSiteService{repo: repo}
}

// PartnerSiteInput 合作站点创建/更新输入
type PartnerSiteInput struct {
	Slug                    string
	Name                    string
	LogoURL                 string
	Status                  string
	OutboundURLTemplate     string
	TrackingParamName       string
	CommissionPerConversion int64
	AllowedCountries        []string
	BlockedCountries        []string
}

// PartnerAlternative 地域屏蔽时推荐的可访问站点
type PartnerAlternative struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url"`
}

// Create 创建合作站点
func (s *PartnerSiteService) Create(input PartnerSiteInput) (*models.PartnerSite, error) {
	site := &models.PartnerSite{}
	if err := applyPartnerSiteInput(site, input); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetBySlug(site.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPartnerSlugExists
	}
	if err := s.repo.Create(site); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrPartnerSlugExists
		}
		return nil, err
	}
	logger.Infow("partner_site_created", "partner_site_id", site.ID, "slug", site.Slug, "commission_per_conversion", site.CommissionPerConversion)
	return site, nil
}

// Update 更新合作站点，停用通过状态置为 INACTIVE 完成
func (s *PartnerSiteService) Update(id uint, input PartnerSiteInput) (*models.PartnerSite, error) {
	site, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	before := *site
	if err := applyPartnerSiteInput(site, input); err != nil {
		return nil, err
	}
	if site.Slug != before.Slug {
		existing, err := s.repo.GetBySlug(site.Slug)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != site.ID {
			return nil, ErrPartnerSlugExists
		}
	}
	if err := s.repo.Update(site); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrPartnerSlugExists
		}
		return nil, err
	}
	logger.Infow("partner_site_updated",
		"partner_site_id", site.ID,
		"slug", site.Slug,
		"status_before", before.Status,
		"status_after", site.Status,
		"commission_before", before.CommissionPerConversion,
		"commission_after", site.CommissionPerConversion,
	)
	return site, nil
}

// Get 获取合作站点
func (s *PartnerSiteService) Get(id uint) (*models.PartnerSite, error) {
	site, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	return site, nil
}

// GetBySlug 按标识获取合作站点
func (s *PartnerSiteService) GetBySlug(slug string) (*models.PartnerSite, error) {
	site, err := s.repo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	return site, nil
}

// List 分页查询合作站点
func (s *PartnerSiteService) List(filter repository.PartnerSiteListFilter) ([]models.PartnerSite, int64, error) {
	return s.repo.List(filter)
}

// ListAlternatives 返回允许该国家访问的其它启用站点
func (s *PartnerSiteService) ListAlternatives(countryCode string, excludeID uint) ([]PartnerAlternative, error) {
	sites, err := s.repo.ListActive()
	if err != nil {
		return nil, err
	}
	result := make([]PartnerAlternative, 0, maxAlternativeSites)
	for i := range sites {
		site := &sites[i]
		if site.ID == excludeID || !site.AllowsCountry(countryCode) {
			continue
		}
		result = append(result, PartnerAlternative{Name: site.Name, Slug: site.Slug, LogoURL: site.LogoURL})
		if len(result) >= maxAlternativeSites {
			break
		}
	}
	return result, nil
}

func applyPartnerSiteInput(site *models.PartnerSite, input PartnerSiteInput) error {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !partnerSlugPattern.MatchString(slug) {
		return ErrPartnerSlugInvalid
	}
	template := strings.TrimSpace(input.OutboundURLTemplate)
	if !isAbsoluteHTTPURL(template) {
		return ErrPartnerTemplate
	}
	param := strings.TrimSpace(input.TrackingParamName)
	if param == "" {
		return ErrPartnerTrackingParam
	}
	if input.CommissionPerConversion < 0 {
		return ErrPartnerCommission
	}
	status := strings.ToUpper(strings.TrimSpace(input.Status))
	if status == "" {
		status = constants.PartnerSiteStatusActive
	}
	if status != constants.PartnerSiteStatusActive && status != constants.PartnerSiteStatusInactive {
		return ErrPartnerStatusInvalid
	}
	allowed, err := normalizeCountryCodes(input.AllowedCountries)
	if err != nil {
		return err
	}
	blocked, err := normalizeCountryCodes(input.BlockedCountries)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug
	}

	site.Slug = slug
	site.Name = name
	site.LogoURL = strings.TrimSpace(input.LogoURL)
	site.Status = status
	site.OutboundURLTemplate = template
	site.TrackingParamName = param
	site.CommissionPerConversion = input.CommissionPerConversion
	site.AllowedCountries = allowed
	site.BlockedCountries = blocked
	return nil
}

func normalizeCountryCodes(codes []string) (models.StringArray, error) {
	result := make(models.StringArray, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		if !countryCodePattern.MatchString(code) {
			return nil, errors.Join(ErrPartnerCountryInvalid, errors.New(code))
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, code)
	}
	return result, nil
}

func isAbsoluteHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
