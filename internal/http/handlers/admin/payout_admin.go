package admin

import (
	"strings"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

// GeneratePayoutsRequest 结算单生成请求
type GeneratePayoutsRequest struct {
	Period string `json:"period" binding:"required"`
	Async  bool   `json:"async"`
}

// MarkPayoutPaidRequest 标记结算单已付款请求
type MarkPayoutPaidRequest struct {
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
	Notes            string `json:"notes"`
}

// GeneratePayoutsResponse 结算单生成结果
type GeneratePayoutsResponse struct {
	Period  string      `json:"period"`
	Queued  bool        `json:"queued"`
	Created int         `json:"created"`
	Payouts interface{} `json:"payouts,omitempty"`
}

// GeneratePayouts 为周期生成结算单，async=true 时投递到异步队列
func (h *Handler) GeneratePayouts(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req GeneratePayoutsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	period := strings.TrimSpace(req.Period)
	if req.Async {
		if err := h.PayoutService.EnqueueGenerate(period, adminID); err != nil {
			respondMappedError(c, err, domainErrorRules, "payout enqueue failed")
			return
		}
		response.Success(c, GeneratePayoutsResponse{Period: period, Queued: true})
		return
	}
	payouts, err := h.PayoutService.GenerateForPeriod(period)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "payout generate failed")
		return
	}
	requestLog(c).Infow("admin_payouts_generated", "admin_id", adminID, "period", period, "created", len(payouts))
	response.Success(c, GeneratePayoutsResponse{Period: period, Created: len(payouts), Payouts: payouts})
}

// ListPayouts 结算单列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := readPagination(c)
	payouts, total, err := h.PayoutService.List(repository.PayoutListFilter{
		Page:       page,
		PageSize:   pageSize,
		PromoterID: strings.TrimSpace(c.Query("promoter_id")),
		Status:     strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Period:     strings.TrimSpace(c.Query("period")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "payout fetch failed", err)
		return
	}
	response.SuccessWithPage(c, payouts, response.BuildPagination(page, pageSize, total))
}

// GetPayout 结算单详情
func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	payout, err := h.PayoutService.Get(id)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "payout fetch failed")
		return
	}
	response.Success(c, payout)
}

// MarkPayoutPaid 标记结算单已付款
func (h *Handler) MarkPayoutPaid(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req MarkPayoutPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	payout, err := h.PayoutService.MarkPaid(id, service.MarkPaidInput{
		Method:    req.PaymentMethod,
		Reference: req.PaymentReference,
		Notes:     req.Notes,
		Actor:     adminID,
	})
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "payout update failed")
		return
	}
	response.Success(c, payout)
}
