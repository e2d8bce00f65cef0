package public

import (
	"strings"

	"github.com/tipster-link/internal/http/handlers/shared"
	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// PromoterLinkItem 推广者链接列表项
type PromoterLinkItem struct {
	ID               uint   `json:"id"`
	RedirectToken    string `json:"redirect_token"`
	RedirectPath     string `json:"redirect_path"`
	PartnerSiteID    uint   `json:"partner_site_id"`
	PartnerName      string `json:"partner_name"`
	PartnerSlug      string `json:"partner_slug"`
	LogoURL          string `json:"logo_url"`
	PartnerActive    bool   `json:"partner_active"`
	TotalClicks      int64  `json:"total_clicks"`
	TotalConversions int64  `json:"total_conversions"`
}

// ResolveLinkRequest 推广者生成链接请求
type ResolveLinkRequest struct {
	PartnerSiteID uint   `json:"partner_site_id"`
	PartnerSlug   string `json:"partner_slug"`
}

var promoterLinkErrorRules = []shared.MappedError{
	{Target: service.ErrPartnerSiteNotFound, Code: response.CodeNotFound, Msg: "partner site not found"},
	{Target: service.ErrPromoterIDRequired, Code: response.CodeUnauthorized, Msg: "unauthorized"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound},
	{Target: service.ErrInvalidInput, Code: response.CodeBadRequest},
}

// ListMyLinks 推广者查看自己的全部链接与计数
func (h *Handler) ListMyLinks(c *gin.Context) {
	promoterID, ok := getPromoterID(c)
	if !ok {
		return
	}
	links, err := h.LinkService.ListByPromoter(promoterID)
	if err != nil {
		shared.RespondMappedError(c, err, promoterLinkErrorRules, response.CodeInternal, "link fetch failed")
		return
	}
	items := make([]PromoterLinkItem, 0, len(links))
	for i := range links {
		items = append(items, toPromoterLinkItem(&links[i]))
	}
	response.Success(c, items)
}

// ResolveMyLink 推广者获取（首次则创建）指向某合作站点的链接
func (h *Handler) ResolveMyLink(c *gin.Context) {
	promoterID, ok := getPromoterID(c)
	if !ok {
		return
	}
	var req ResolveLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	var (
		link *models.AttributionLink
		err  error
	)
	if slug := strings.TrimSpace(req.PartnerSlug); slug != "" {
		link, err = h.LinkService.ResolveBySlug(promoterID, slug)
	} else if req.PartnerSiteID > 0 {
		link, err = h.LinkService.Resolve(promoterID, req.PartnerSiteID)
	} else {
		respondError(c, response.CodeBadRequest, "partner_site_id or partner_slug required", nil)
		return
	}
	if err != nil {
		shared.RespondMappedError(c, err, promoterLinkErrorRules, response.CodeInternal, "link resolve failed")
		return
	}
	if link.PartnerSite == nil {
		if site, siteErr := h.PartnerSiteService.Get(link.PartnerSiteID); siteErr == nil {
			link.PartnerSite = site
		}
	}
	response.Success(c, toPromoterLinkItem(link))
}

// ListMyPayouts 推广者查看自己的结算单
func (h *Handler) ListMyPayouts(c *gin.Context) {
	promoterID, ok := getPromoterID(c)
	if !ok {
		return
	}
	page, pageSize := shared.ReadPagination(c)
	payouts, total, err := h.PayoutService.List(repository.PayoutListFilter{
		Page:       page,
		PageSize:   pageSize,
		PromoterID: promoterID,
		Status:     strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Period:     strings.TrimSpace(c.Query("period")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "payout fetch failed", err)
		return
	}
	response.SuccessWithPage(c, payouts, response.BuildPagination(page, pageSize, total))
}

// GetMyCommission 推广者查看当前佣金档位与本月业绩
func (h *Handler) GetMyCommission(c *gin.Context) {
	promoterID, ok := getPromoterID(c)
	if !ok {
		return
	}
	overview, err := h.CommissionService.GetOverview(promoterID)
	if err != nil {
		respondError(c, response.CodeInternal, "commission fetch failed", err)
		return
	}
	response.Success(c, overview)
}

func toPromoterLinkItem(link *models.AttributionLink) PromoterLinkItem {
	item := PromoterLinkItem{
		ID:               link.ID,
		RedirectToken:    link.RedirectToken,
		RedirectPath:     "/r/" + link.RedirectToken,
		PartnerSiteID:    link.PartnerSiteID,
		TotalClicks:      link.TotalClicks,
		TotalConversions: link.TotalConversions,
	}
	if site := link.PartnerSite; site != nil {
		item.PartnerName = site.Name
		item.PartnerSlug = site.Slug
		item.LogoURL = site.LogoURL
		item.PartnerActive = site.IsActive()
	}
	return item
}
