package admin

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tipster-link/internal/http/response"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"
	"github.com/tipster-link/internal/service"

	"github.com/gin-gonic/gin"
)

const adminConversionExportBatchSize = 500

// RejectConversionRequest 拒绝转化请求
type RejectConversionRequest struct {
	Reason string `json:"reason"`
}

// ListConversions 转化列表
func (h *Handler) ListConversions(c *gin.Context) {
	page, pageSize := readPagination(c)
	filter, err := buildConversionFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid conversion filter", err)
		return
	}
	conversions, total, err := h.ConversionService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "conversion fetch failed", err)
		return
	}
	response.SuccessWithPage(c, conversions, response.BuildPagination(page, pageSize, total))
}

// GetConversion 转化详情
func (h *Handler) GetConversion(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	conversion, err := h.ConversionService.Get(id)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "conversion fetch failed")
		return
	}
	response.Success(c, conversion)
}

// ApproveConversion 审核通过转化，计算佣金
func (h *Handler) ApproveConversion(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	conversion, err := h.ConversionService.Approve(id, adminID)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "conversion approve failed")
		return
	}
	response.Success(c, conversion)
}

// RejectConversion 拒绝转化，必须填写原因
func (h *Handler) RejectConversion(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req RejectConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	conversion, err := h.ConversionService.Reject(id, req.Reason, adminID)
	if err != nil {
		respondMappedError(c, err, domainErrorRules, "conversion reject failed")
		return
	}
	response.Success(c, conversion)
}

// ExportConversions 导出转化 CSV
func (h *Handler) ExportConversions(c *gin.Context) {
	filter, err := buildConversionFilter(c, 1, adminConversionExportBatchSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid conversion filter", err)
		return
	}
	conversions, _, err := h.ConversionService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "conversion fetch failed", err)
		return
	}

	filename := fmt.Sprintf("conversions_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write([]string{
		"id",
		"partner_site_id",
		"promoter_id",
		"event_type",
		"status",
		"source",
		"external_reference_id",
		"occurred_at",
		"commission_amount",
		"gateway_fee",
		"platform_fee_percent",
		"platform_fee",
		"net_amount",
		"commission_tier",
		"currency",
		"approved_at",
		"rejection_reason",
	}); err != nil {
		requestLog(c).Errorw("admin_conversion_export_header_write_failed", "error", err)
		return
	}

	page := 1
	for {
		if len(conversions) > 0 {
			writeConversionCSVRows(writer, conversions)
			writer.Flush()
			if err := writer.Error(); err != nil {
				requestLog(c).Errorw("admin_conversion_export_flush_failed", "page", page, "error", err)
				return
			}
		}
		if len(conversions) < adminConversionExportBatchSize {
			break
		}
		page++
		filter.Page = page
		conversions, _, err = h.ConversionService.List(filter)
		if err != nil {
			requestLog(c).Errorw("admin_conversion_export_batch_fetch_failed", "page", page, "error", err)
			return
		}
	}
}

func writeConversionCSVRows(writer *csv.Writer, conversions []models.Conversion) {
	for _, conversion := range conversions {
		promoterID := ""
		if conversion.PromoterID != nil {
			promoterID = *conversion.PromoterID
		}
		externalRef := ""
		if conversion.ExternalReferenceID != nil {
			externalRef = *conversion.ExternalReferenceID
		}
		_ = writer.Write([]string{
			strconv.FormatUint(uint64(conversion.ID), 10),
			strconv.FormatUint(uint64(conversion.PartnerSiteID), 10),
			promoterID,
			conversion.EventType,
			conversion.Status,
			conversion.Source,
			externalRef,
			conversion.OccurredAt.Format(time.RFC3339),
			strconv.FormatInt(conversion.CommissionAmount, 10),
			strconv.FormatInt(conversion.GatewayFee, 10),
			conversion.PlatformFeePercent.StringFixed(2),
			strconv.FormatInt(conversion.PlatformFee, 10),
			strconv.FormatInt(conversion.NetAmount, 10),
			conversion.CommissionTier,
			conversion.Currency,
			formatTimeNullable(conversion.ApprovedAt),
			conversion.RejectionReason,
		})
	}
}

func buildConversionFilter(c *gin.Context, page, pageSize int) (repository.ConversionListFilter, error) {
	partnerSiteID, err := parseQueryUint(c, "partner_site_id")
	if err != nil {
		return repository.ConversionListFilter{}, err
	}
	batchID, err := parseQueryUint(c, "batch_id")
	if err != nil {
		return repository.ConversionListFilter{}, err
	}
	occurredFrom, err := parseTimeNullable(c.Query("occurred_from"))
	if err != nil {
		return repository.ConversionListFilter{}, err
	}
	occurredTo, err := parseTimeNullable(c.Query("occurred_to"))
	if err != nil {
		return repository.ConversionListFilter{}, err
	}
	eventType := strings.TrimSpace(c.Query("event_type"))
	if eventType != "" {
		normalized, ok := service.NormalizeEventType(eventType)
		if !ok {
			return repository.ConversionListFilter{}, service.ErrEventTypeInvalid
		}
		eventType = normalized
	}
	return repository.ConversionListFilter{
		Page:          page,
		PageSize:      pageSize,
		PartnerSiteID: partnerSiteID,
		PromoterID:    strings.TrimSpace(c.Query("promoter_id")),
		Status:        strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		EventType:     eventType,
		SourceBatchID: batchID,
		OccurredFrom:  occurredFrom,
		OccurredTo:    occurredTo,
	}, nil
}
