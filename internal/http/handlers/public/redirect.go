package public

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// 跳转接口错误码
const (
	redirectCodeCountryBlocked = "COUNTRY_BLOCKED"
	redirectCodeLinkNotFound   = "LINK_NOT_FOUND"
	redirectCodeInternal       = "INTERNAL_ERROR"
)

// RedirectBlockedResponse 地域屏蔽响应
type RedirectBlockedResponse struct {
	Success      bool                         `json:"success"`
	Code         string                       `json:"code"`
	BlockReason  string                       `json:"block_reason"`
	CountryCode  string                       `json:"country_code"`
	Alternatives []service.PartnerAlternative `json:"alternatives"`
}

// RedirectErrorResponse 跳转失败响应
type RedirectErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error,omitempty"`
}

// Redirect 处理推广链接点击：放行时 302 跳转，屏蔽时 403 并推荐可访问站点
func (h *Handler) Redirect(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	result, err := h.ClickService.RecordClick(c.Request.Context(), token, h.visitorContext(c))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, RedirectErrorResponse{Success: false, Code: redirectCodeLinkNotFound})
			return
		}
		requestLog(c).Errorw("redirect_click_failed", "redirect_token", token, "error", err)
		c.JSON(http.StatusInternalServerError, RedirectErrorResponse{
			Success: false,
			Code:    redirectCodeInternal,
			Error:   "redirect failed",
		})
		return
	}
	if !result.Allowed {
		alternatives := result.Alternatives
		if alternatives == nil {
			alternatives = []service.PartnerAlternative{}
		}
		c.JSON(http.StatusForbidden, RedirectBlockedResponse{
			Success:      false,
			Code:         redirectCodeCountryBlocked,
			BlockReason:  result.BlockReason,
			CountryCode:  result.CountryCode,
			Alternatives: alternatives,
		})
		return
	}
	c.Redirect(http.StatusFound, result.OutboundURL)
}

// GetRedirectInfo 查询令牌对应的站点信息，不记录点击
func (h *Handler) GetRedirectInfo(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	info, err := h.ClickService.Info(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "link not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "link info fetch failed", err)
		return
	}
	response.Success(c, info)
}

func (h *Handler) visitorContext(c *gin.Context) service.VisitorContext {
	visitor := service.VisitorContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}
	if h.Config != nil {
		if header := strings.TrimSpace(h.Config.Geo.CountryHeader); header != "" {
			visitor.HeaderCountry = c.GetHeader(header)
		}
	}
	return visitor
}
