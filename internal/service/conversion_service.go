package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/metrics"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConversionService 转化接入与审核服务
type ConversionService struct {
	convRepo   repository.ConversionRepository
	linkRepo   repository.AttributionLinkRepository
	siteRepo   repository.PartnerSiteRepository
	clickRepo  repository.ClickEventRepository
	commission *CommissionService
	cfg        config.ConversionConfig
	now        func() time.Time
}

// NewConversionService 创建转化服务
func NewConversionService(
	convRepo repository.ConversionRepository,
	linkRepo repository.AttributionLinkRepository,
	siteRepo repository.PartnerSiteRepository,
	clickRepo repository.ClickEventRepository,
	commission *CommissionService,
	cfg config.ConversionConfig,
) *ConversionService {
	return &ConversionService{
		convRepo:   convRepo,
		linkRepo:   linkRepo,
		siteRepo:   siteRepo,
		clickRepo:  clickRepo,
		commission: commission,
		cfg:        cfg,
		now:        time.Now,
	}
}

// PostbackResult 回传处理结果，直接作为回传接口响应体
type PostbackResult struct {
	Success      bool   `json:"success"`
	ConversionID uint   `json:"conversion_id,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// IngestResult 单条转化入库结果
type IngestResult struct {
	Conversion *models.Conversion
	Duplicate  bool
	DryRun     bool
}

// conversionDraft 两个接入渠道归一化后的待入库转化
type conversionDraft struct {
	site              *models.PartnerSite
	link              *models.AttributionLink
	clickEventID      *uint
	trackingReference string
	externalRef       string
	eventType         string
	grossAmount       *int64
	currency          string
	occurredAt        time.Time
	buyerEmail        string
	buyerPhone        string
	source            string
	sourceBatchID     *uint
	targetStatus      string
	rejectionReason   string
	actor             string
	dryRun            bool
	allowUnassigned   bool
}

// HandlePostback 处理合作方回传，任何失败都体现在返回体中
func (s *ConversionService) HandlePostback(ctx context.Context, fields map[string]string) PostbackResult {
	signal, err := NormalizePostback(fields)
	if err != nil {
		metrics.ObserveConversion(constants.ConversionSourcePostback, metrics.OutcomeError)
		logger.Warnw("postback_invalid", "tracking_reference", signal.TrackingReference, "event", signal.RawEventType, "error", err)
		return PostbackResult{Success: false, Error: publicErrorMessage(err)}
	}
	result, err := s.IngestPostback(ctx, signal)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, ErrPromoterUnresolved) || errors.Is(err, ErrPartnerSiteNotFound) {
			outcome = metrics.OutcomeUnresolved
		}
		metrics.ObserveConversion(constants.ConversionSourcePostback, outcome)
		if isDomainError(err) {
			logger.Warnw("postback_rejected",
				"tracking_reference", signal.TrackingReference,
				"partner_slug", signal.PartnerSlug,
				"external_reference_id", signal.ExternalReferenceID,
				"error", err,
			)
		} else {
			logger.Errorw("postback_ingest_failed",
				"tracking_reference", signal.TrackingReference,
				"partner_slug", signal.PartnerSlug,
				"external_reference_id", signal.ExternalReferenceID,
				"error", err,
			)
		}
		return PostbackResult{Success: false, Error: publicErrorMessage(err)}
	}
	return PostbackResult{
		Success:      true,
		ConversionID: result.Conversion.ID,
		Duplicate:    result.Duplicate,
		DryRun:       result.DryRun,
		Status:       result.Conversion.Status,
	}
}

// IngestPostback 归因并入库一条回传信号
func (s *ConversionService) IngestPostback(_ context.Context, signal PostbackSignal) (*IngestResult, error) {
	if strings.TrimSpace(signal.TrackingReference) == "" {
		return nil, ErrTrackingRefRequired
	}
	if signal.EventType == "" {
		eventType, ok := NormalizeEventType(signal.RawEventType)
		if !ok {
			return nil, ErrEventTypeInvalid
		}
		signal.EventType = eventType
	}
	site, link, clickID, err := s.resolvePostbackOwner(signal.TrackingReference, signal.PartnerSlug)
	if err != nil {
		return nil, err
	}

	autoApprove := s.cfg.AutoApproveDefault
	if signal.AutoApprove != nil {
		autoApprove = *signal.AutoApprove
	}
	target := constants.ConversionStatusPending
	if autoApprove {
		target = constants.ConversionStatusApproved
	}
	currency := signal.Currency
	if currency == "" {
		currency = constants.DefaultCurrency
	}
	return s.ingest(conversionDraft{
		site:              site,
		link:              link,
		clickEventID:      clickID,
		trackingReference: signal.TrackingReference,
		externalRef:       signal.ExternalReferenceID,
		eventType:         signal.EventType,
		grossAmount:       signal.GrossAmount,
		currency:          currency,
		occurredAt:        s.now(),
		buyerEmail:        signal.BuyerEmail,
		buyerPhone:        signal.BuyerPhone,
		source:            constants.ConversionSourcePostback,
		targetStatus:      target,
		actor:             "postback",
		dryRun:            signal.DryRun,
	})
}

// resolvePostbackOwner 由跟踪标识找到所属站点与链接
func (s *ConversionService) resolvePostbackOwner(reference, partnerSlug string) (*models.PartnerSite, *models.AttributionLink, *uint, error) {
	reference = strings.TrimSpace(reference)
	var site *models.PartnerSite
	if slug := strings.TrimSpace(partnerSlug); slug != "" {
		found, err := s.siteRepo.GetBySlug(slug)
		if err != nil {
			return nil, nil, nil, err
		}
		if found == nil {
			return nil, nil, nil, ErrPartnerSiteNotFound
		}
		site = found
	}

	// 跟踪标识本身即跳转令牌
	link, err := s.linkRepo.FindByToken(reference)
	if err != nil {
		return nil, nil, nil, err
	}
	if link != nil && (site == nil || link.PartnerSiteID == site.ID) {
		if site == nil {
			site = link.PartnerSite
		}
		if site == nil {
			return nil, nil, nil, ErrPartnerSiteNotFound
		}
		return site, link, nil, nil
	}

	promoterID, clickRef := SplitTrackingReference(reference)
	clickID, click := s.lookupClick(clickRef)
	if click != nil && click.PromoterID != promoterID {
		clickID, click = nil, nil
	}
	if site == nil && click != nil {
		found, err := s.siteRepo.GetByID(click.PartnerSiteID)
		if err != nil {
			return nil, nil, nil, err
		}
		site = found
	}

	if site != nil {
		for _, candidate := range uniqueStrings(reference, promoterID) {
			link, err := s.linkRepo.FindByPair(candidate, site.ID)
			if err != nil {
				return nil, nil, nil, err
			}
			if link != nil {
				return site, link, clickIDIfMatches(clickID, click, link), nil
			}
		}
		link, err := s.linkRepo.MatchTrackingID(site.ID, reference)
		if err != nil {
			return nil, nil, nil, err
		}
		if link != nil {
			return site, link, nil, nil
		}
		return nil, nil, nil, ErrPromoterUnresolved
	}

	// 未指定站点时仅在推广者只有一条链接时归因
	for _, candidate := range uniqueStrings(reference, promoterID) {
		links, err := s.linkRepo.ListByPromoter(candidate)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(links) == 1 && links[0].PartnerSite != nil {
			return links[0].PartnerSite, &links[0], nil, nil
		}
		if len(links) > 1 {
			break
		}
	}
	return nil, nil, nil, ErrPromoterUnresolved
}

func (s *ConversionService) lookupClick(clickRef string) (*uint, *models.ClickEvent) {
	if clickRef == "" || s.clickRepo == nil {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(clickRef, 10, 64)
	if err != nil || parsed == 0 {
		return nil, nil
	}
	click, err := s.clickRepo.GetByID(uint(parsed))
	if err != nil {
		logger.Warnw("postback_click_lookup_failed", "click_id", parsed, "error", err)
		return nil, nil
	}
	if click == nil {
		return nil, nil
	}
	id := click.ID
	return &id, click
}

func clickIDIfMatches(clickID *uint, click *models.ClickEvent, link *models.AttributionLink) *uint {
	if clickID == nil || click == nil || link == nil || click.LinkID != link.ID {
		return nil
	}
	return clickID
}

// ingest 去重、计算佣金并入库；外部交易号冲突视为幂等重试
// allowUnassigned 时无归因链接的转化以未归因待审核状态入库
func (s *ConversionService) ingest(draft conversionDraft) (*IngestResult, error) {
	if draft.site == nil || (draft.link == nil && !draft.allowUnassigned) {
		return nil, ErrPromoterUnresolved
	}
	if draft.externalRef != "" {
		existing, err := s.convRepo.FindByExternalRef(draft.site.ID, draft.externalRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logDuplicate(draft, existing)
			return &IngestResult{Conversion: existing, Duplicate: true, DryRun: draft.dryRun}, nil
		}
	}

	var (
		promoterID  string
		linkID      uint
		promoterRef *string
		linkRef     *uint
	)
	if draft.link != nil {
		promoterID = draft.link.PromoterID
		linkID = draft.link.ID
		promoterRef = &promoterID
		linkRef = &linkID
	} else if draft.targetStatus == constants.ConversionStatusApproved {
		// 未归因转化没有佣金归属，只能待审核
		draft.targetStatus = constants.ConversionStatusPending
	}
	conversion := &models.Conversion{
		PartnerSiteID:     draft.site.ID,
		PromoterID:        promoterRef,
		LinkID:            linkRef,
		ClickEventID:      draft.clickEventID,
		TrackingReference: draft.trackingReference,
		EventType:         draft.eventType,
		Status:            constants.ConversionStatusPending,
		Source:            draft.source,
		GrossAmount:       draft.grossAmount,
		Currency:          draft.currency,
		OccurredAt:        draft.occurredAt.UTC(),
		BuyerEmail:        truncateString(draft.buyerEmail, 255),
		BuyerPhone:        truncateString(draft.buyerPhone, 64),
		SourceBatchID:     draft.sourceBatchID,
	}
	if draft.externalRef != "" {
		ref := draft.externalRef
		conversion.ExternalReferenceID = &ref
	}

	now := s.now().UTC()
	switch draft.targetStatus {
	case constants.ConversionStatusApproved:
		breakdown, err := s.commission.Calculate(promoterID, draft.site.CommissionPerConversion)
		if err != nil {
			return nil, err
		}
		applyBreakdown(conversion, breakdown)
		conversion.Status = constants.ConversionStatusApproved
		conversion.ApprovedAt = &now
		conversion.ApprovedBy = draft.actor
	case constants.ConversionStatusRejected:
		conversion.Status = constants.ConversionStatusRejected
		conversion.RejectionReason = draft.rejectionReason
		conversion.RejectedAt = &now
		conversion.RejectedBy = draft.actor
	}

	if draft.dryRun {
		logger.Infow("conversion_dry_run", "partner_site_id", draft.site.ID, "promoter_id", promoterID, "status", conversion.Status, "net_amount", conversion.NetAmount)
		return &IngestResult{Conversion: conversion, DryRun: true}, nil
	}

	err := s.convRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.convRepo.WithTx(tx).Create(conversion); err != nil {
			return err
		}
		if conversion.Status != constants.ConversionStatusApproved {
			return nil
		}
		return s.linkRepo.WithTx(tx).AtomicIncrement(linkID, repository.LinkCounterConversions, 1)
	})
	if err != nil {
		if draft.externalRef != "" && repository.IsUniqueViolation(err) {
			existing, findErr := s.convRepo.FindByExternalRef(draft.site.ID, draft.externalRef)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				s.logDuplicate(draft, existing)
				return &IngestResult{Conversion: existing, Duplicate: true}, nil
			}
		}
		metrics.ObserveConversion(draft.source, metrics.OutcomeError)
		return nil, err
	}

	outcome := metrics.OutcomeCreated
	if linkRef == nil {
		outcome = metrics.OutcomeUnresolved
	}
	metrics.ObserveConversion(draft.source, outcome)
	logger.Infow("conversion_created",
		"conversion_id", conversion.ID,
		"partner_site_id", conversion.PartnerSiteID,
		"promoter_id", promoterID,
		"link_id", linkID,
		"event_type", conversion.EventType,
		"status", conversion.Status,
		"source", conversion.Source,
		"external_reference_id", draft.externalRef,
	)
	if conversion.Status == constants.ConversionStatusApproved {
		logApproval(conversion, constants.ConversionStatusPending, draft.actor)
	}
	return &IngestResult{Conversion: conversion}, nil
}

func (s *ConversionService) logDuplicate(draft conversionDraft, existing *models.Conversion) {
	metrics.ObserveConversion(draft.source, metrics.OutcomeDuplicate)
	logger.Infow("conversion_duplicate_ignored",
		"conversion_id", existing.ID,
		"partner_site_id", draft.site.ID,
		"external_reference_id", draft.externalRef,
		"source", draft.source,
	)
}

// Approve 审核通过：按审核时站点佣金计算并累加链接转化数
func (s *ConversionService) Approve(id uint, actor string) (*models.Conversion, error) {
	conversion, err := s.convRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionNotFound
	}
	if conversion.Status != constants.ConversionStatusPending {
		return nil, ErrConversionTerminal
	}
	if conversion.PromoterID == nil || strings.TrimSpace(*conversion.PromoterID) == "" {
		return nil, ErrConversionUnassigned
	}
	site, err := s.siteRepo.GetByID(conversion.PartnerSiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	breakdown, err := s.commission.Calculate(*conversion.PromoterID, site.CommissionPerConversion)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	actor = strings.TrimSpace(actor)
	updates := map[string]interface{}{
		"status":               constants.ConversionStatusApproved,
		"commission_amount":    breakdown.GrossAmount,
		"gateway_fee":          breakdown.GatewayFee,
		"platform_fee_percent": breakdown.PlatformFeePercent,
		"platform_fee":         breakdown.PlatformFee,
		"net_amount":           breakdown.NetAmount,
		"commission_tier":      breakdown.Tier,
		"approved_at":          now,
		"approved_by":          actor,
		"updated_at":           now,
	}
	err = s.convRepo.Transaction(func(tx *gorm.DB) error {
		ok, err := s.convRepo.WithTx(tx).TransitionStatus(conversion.ID, constants.ConversionStatusPending, updates)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConversionTerminal
		}
		if conversion.LinkID == nil {
			return nil
		}
		return s.linkRepo.WithTx(tx).AtomicIncrement(*conversion.LinkID, repository.LinkCounterConversions, 1)
	})
	if err != nil {
		return nil, err
	}

	previousStatus := conversion.Status
	conversion.Status = constants.ConversionStatusApproved
	applyBreakdown(conversion, breakdown)
	conversion.ApprovedAt = &now
	conversion.ApprovedBy = actor
	logApproval(conversion, previousStatus, actor)
	return conversion, nil
}

// Reject 审核拒绝：清空佣金字段并记录原因
func (s *ConversionService) Reject(id uint, reason, actor string) (*models.Conversion, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRejectReasonRequired
	}
	conversion, err := s.convRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionNotFound
	}
	if conversion.Status != constants.ConversionStatusPending {
		return nil, ErrConversionTerminal
	}

	now := s.now().UTC()
	actor = strings.TrimSpace(actor)
	updates := map[string]interface{}{
		"status":               constants.ConversionStatusRejected,
		"commission_amount":    int64(0),
		"gateway_fee":          int64(0),
		"platform_fee_percent": decimal.Zero,
		"platform_fee":         int64(0),
		"net_amount":           int64(0),
		"commission_tier":      "",
		"rejection_reason":     reason,
		"rejected_at":          now,
		"rejected_by":          actor,
		"updated_at":           now,
	}
	ok, err := s.convRepo.TransitionStatus(conversion.ID, constants.ConversionStatusPending, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversionTerminal
	}
	previousStatus := conversion.Status
	applyBreakdown(conversion, CommissionBreakdown{})
	conversion.Status = constants.ConversionStatusRejected
	conversion.RejectionReason = reason
	conversion.RejectedAt = &now
	conversion.RejectedBy = actor
	logger.Infow("conversion_rejected",
		"conversion_id", conversion.ID,
		"status_before", previousStatus,
		"status_after", conversion.Status,
		"reason", reason,
		"actor", actor,
	)
	return conversion, nil
}

// Get 获取转化
func (s *ConversionService) Get(id uint) (*models.Conversion, error) {
	conversion, err := s.convRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionNotFound
	}
	return conversion, nil
}

// List 分页查询转化
func (s *ConversionService) List(filter repository.ConversionListFilter) ([]models.Conversion, int64, error) {
	return s.convRepo.List(filter)
}

func applyBreakdown(conversion *models.Conversion, breakdown CommissionBreakdown) {
	conversion.CommissionAmount = breakdown.GrossAmount
	conversion.GatewayFee = breakdown.GatewayFee
	conversion.PlatformFeePercent = breakdown.PlatformFeePercent
	conversion.PlatformFee = breakdown.PlatformFee
	conversion.NetAmount = breakdown.NetAmount
	conversion.CommissionTier = breakdown.Tier
}

func logApproval(conversion *models.Conversion, previousStatus, actor string) {
	promoterID := ""
	if conversion.PromoterID != nil {
		promoterID = *conversion.PromoterID
	}
	logger.Infow("conversion_approved",
		"conversion_id", conversion.ID,
		"promoter_id", promoterID,
		"status_before", previousStatus,
		"status_after", conversion.Status,
		"commission_amount", conversion.CommissionAmount,
		"gateway_fee", conversion.GatewayFee,
		"platform_fee_percent", conversion.PlatformFeePercent.String(),
		"platform_fee", conversion.PlatformFee,
		"net_amount", conversion.NetAmount,
		"tier", conversion.CommissionTier,
		"actor", actor,
	)
}

func uniqueStrings(values ...string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
