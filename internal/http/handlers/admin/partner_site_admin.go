package admin

import (
	"strings"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// PartnerSiteRequest 合作站点创建/更新请求
type PartnerSiteRequest struct {
	Slug                    string   `json:"slug" binding:"required"`
	Name                    string   `json:"name"`
	LogoURL                 string   `json:"logo_url"`
	Status                  string   `json:"status"`
	OutboundURLTemplate     string   `json:"outbound_url_template" binding:"required"`
	TrackingParamName       string   `json:"tracking_param_name" binding:"required"`
	CommissionPerConversion int64    `json:"commission_per_conversion"`
	AllowedCountries        []string `json:"allowed_countries"`
	BlockedCountries        []string `json:"blocked_countries"`
}

func (r PartnerSiteRequest) toInput() service.PartnerSiteInput {
	return service.PartnerSiteInput{
		Slug:                    r.Slug,
		Name:                    r.Name,
		LogoURL:                 r.LogoURL,
		Status:                  r.Status,
		OutboundURLTemplate:     r.OutboundURLTemplate,
		TrackingParamName:       r.TrackingParamName,
		CommissionPerConversion: r.CommissionPerConversion,
		AllowedCountries:        r.AllowedCountries,
		BlockedCountries:        r.BlockedCountries,
	}
}

// ListPartnerSites 合作站点列表
func (h *Handler) ListPartnerSites(c *gin.Context) {
	page, pageSize := readPagination(c)
	sites, total, err := h.PartnerSiteService.List(repository.PartnerSiteListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "partner site fetch failed", err)
		return
	}
	response.SuccessWithPage(c, sites, response.BuildPagination(page, pageSize, total))
}

// GetPartnerSite 合作站点详情
func (h *Handler) GetPartnerSite(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	site, err := h.PartnerSiteService.Get(id)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "partner site fetch failed")
		return
	}
	response.Success(c, site)
}

// CreatePartnerSite 创建合作站点
func (h *Handler) CreatePartnerSite(c *gin.Context) {
	var req PartnerSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	site, err := h.PartnerSiteService.Create(req.toInput())
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "partner site create failed")
		return
	}
	adminID, _ := getAdminID(c)
	requestLog(c).Infow("admin_partner_site_created", "admin_id", adminID, "partner_site_id", site.ID, "slug", site.Slug)
	response.Success(c, site)
}

// UpdatePartnerSite 更新合作站点，停用通过 status=INACTIVE 完成
func (h *Handler) UpdatePartnerSite(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PartnerSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	site, err := h.PartnerSiteService.Update(id, req.toInput())
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "partner site update failed")
		return
	}
	adminID, _ := getAdminID(c)
	requestLog(c).Infow("admin_partner_site_updated", "admin_id", adminID, "partner_site_id", site.ID, "status", site.Status)
	response.Success(c, site)
}

// ListLinks 归因链接列表
func (h *Handler) ListLinks(c *gin.Context) {
	page, pageSize := readPagination(c)
	partnerSiteID, err := parseQueryUint(c, "partner_site_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid partner_site_id", nil)
		return
	}
	links, total, err := h.LinkService.List(repository.AttributionLinkListFilter{
		Page:          page,
		PageSize:      pageSize,
		PromoterID:    strings.TrimSpace(c.Query("promoter_id")),
		PartnerSiteID: partnerSiteID,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "link fetch failed", err)
		return
	}
	response.SuccessWithPage(c, links, response.BuildPagination(page, pageSize, total))
}
