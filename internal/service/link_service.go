package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
)

const (
	redirectTokenAlphabet     = "abcdefghjklmnpqrstuvwxyz23456789"
	redirectTokenSuffixLength = 4
	redirectTokenPromoterPart = 6
	redirectTokenMaxAttempts  = 8
)

// LinkService 归因链接解析服务
type LinkService struct {
	linkRepo repository.AttributionLinkRepository
	siteRepo repository.PartnerSiteRepository
}

// NewLinkService 创建归因链接服务
func NewLinkService(linkRepo repository.AttributionLinkRepository, siteRepo repository.PartnerSiteRepository) *LinkService {
	return &LinkService{
		linkRepo: linkRepo,
		siteRepo: siteRepo,
	}
}

// Resolve 获取 (推广者, 站点) 的归因链接，不存在时惰性创建
func (s *LinkService) Resolve(promoterID string, partnerSiteID uint) (*models.AttributionLink, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return nil, ErrPromoterIDRequired
	}
	if partnerSiteID == 0 {
		return nil, ErrPartnerSiteNotFound
	}
	existing, err := s.linkRepo.FindByPair(promoterID, partnerSiteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	site, err := s.siteRepo.GetByID(partnerSiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	if !site.IsActive() {
		return nil, ErrPartnerSiteInactive
	}

	for attempt := 0; attempt < redirectTokenMaxAttempts; attempt++ {
		token, err := generateRedirectToken(promoterID, site.Slug)
		if err != nil {
			return nil, err
		}
		link, created, err := s.linkRepo.UpsertIfAbsent(&models.AttributionLink{
			PromoterID:    promoterID,
			PartnerSiteID: site.ID,
			RedirectToken: token,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				logger.Debugw("link_token_collision", "promoter_id", promoterID, "partner_site_id", site.ID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		if created {
			logger.Infow("link_created", "link_id", link.ID, "promoter_id", promoterID, "partner_site_id", site.ID, "redirect_token", link.RedirectToken)
		}
		return link, nil
	}
	logger.Errorw("link_token_generate_exhausted", "promoter_id", promoterID, "partner_site_id", site.ID)
	return nil, ErrTokenGenerateFailed
}

// ResolveBySlug 按站点标识获取归因链接
func (s *LinkService) ResolveBySlug(promoterID, slug string) (*models.AttributionLink, error) {
	site, err := s.siteRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	return s.Resolve(promoterID, site.ID)
}

// ListByPromoter 查询推广者的全部链接
func (s *LinkService) ListByPromoter(promoterID string) ([]models.AttributionLink, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return nil, ErrPromoterIDRequired
	}
	return s.linkRepo.ListByPromoter(promoterID)
}

// List 分页查询链接
func (s *LinkService) List(filter repository.AttributionLinkListFilter) ([]models.AttributionLink, int64, error) {
	return s.linkRepo.List(filter)
}

// generateRedirectToken 生成 <推广者ID后6位>-<站点标识>-<4位随机> 格式的令牌
func generateRedirectToken(promoterID, slug string) (string, error) {
	promoterPart := tokenSegment(promoterID)
	if len(promoterPart) > redirectTokenPromoterPart {
		promoterPart = promoterPart[len(promoterPart)-redirectTokenPromoterPart:]
	}
	suffix, err := randomTokenSuffix(redirectTokenSuffixLength)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, 3)
	if promoterPart != "" {
		parts = append(parts, promoterPart)
	}
	if slugPart := tokenSegment(slug); slugPart != "" {
		parts = append(parts, slugPart)
	}
	parts = append(parts, suffix)
	return strings.Join(parts, "-"), nil
}

// tokenSegment 仅保留小写字母、数字与连字符
func tokenSegment(raw string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			builder.WriteRune(r)
		}
	}
	return strings.Trim(builder.String(), "-")
}

func randomTokenSuffix(length int) (string, error) {
	var builder strings.Builder
	builder.Grow(length)
	max := big.NewInt(int64(len(redirectTokenAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(redirectTokenAlphabet[n.Int64()])
	}
	return builder.String(), nil
}
