package admin

import (
	"strings"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UpdateCommissionRequest 佣金配置变更请求
type UpdateCommissionRequest struct {
	CustomFeePercent *decimal.Decimal `json:"custom_fee_percent"`
	UseCustomFee     bool             `json:"use_custom_fee"`
	AutoTierEnabled  *bool            `json:"auto_tier_enabled"`
	Reason           string           `json:"reason"`
}

// PreviewCommissionRequest 佣金试算请求
type PreviewCommissionRequest struct {
	GrossAmount int64  `json:"gross_amount"`
	Channel     string `json:"channel"`
}

// GetCommission 推广者佣金配置及当前档位
func (h *Handler) GetCommission(c *gin.Context) {
	overview, err := h.CommissionService.GetOverview(c.Param("promoter_id"))
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "commission fetch failed")
		return
	}
	response.Success(c, overview)
}

// UpdateCommission 手动覆盖或重置推广者平台费率
func (h *Handler) UpdateCommission(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	promoterID := c.Param("promoter_id")
	var req UpdateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	autoTier := true
	if req.AutoTierEnabled != nil {
		autoTier = *req.AutoTierEnabled
	} else if current, err := h.CommissionService.GetConfig(promoterID); err == nil {
		autoTier = current.AutoTierEnabled
	}
	overview, err := h.CommissionService.UpdateConfig(promoterID, service.CommissionConfigUpdate{
		CustomFeePercent: req.CustomFeePercent,
		UseCustomFee:     req.UseCustomFee,
		AutoTierEnabled:  autoTier,
		Reason:           req.Reason,
		Actor:            adminID,
	})
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "commission update failed")
		return
	}
	response.Success(c, overview)
}

// ListCommissionHistory 佣金配置变更历史，最新在前
func (h *Handler) ListCommissionHistory(c *gin.Context) {
	page, pageSize := readPagination(c)
	records, total, err := h.CommissionService.History(repository.CommissionHistoryFilter{
		Page:       page,
		PageSize:   pageSize,
		PromoterID: strings.TrimSpace(c.Param("promoter_id")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "commission history fetch failed", err)
		return
	}
	response.SuccessWithPage(c, records, response.BuildPagination(page, pageSize, total))
}

// PreviewCommission 按毛佣金与通道试算拆分
func (h *Handler) PreviewCommission(c *gin.Context) {
	var req PreviewCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	breakdown, err := h.CommissionService.Preview(c.Param("promoter_id"), req.GrossAmount, req.Channel)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "commission preview failed")
		return
	}
	response.Success(c, breakdown)
}
