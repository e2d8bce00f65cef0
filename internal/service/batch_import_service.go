package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/repository"

	"github.com/alitto/pond/v2"
)

const (
	importStoredErrorLimit   = 100
	importDefaultConcurrency = 4
	importRejectedReason     = "rejected in partner report"
)

// 对账导入的标准列名
const (
	importColumnTrackingID  = "tipster_tracking_id"
	importColumnEventType   = "event_type"
	importColumnStatus      = "status"
	importColumnOccurredAt  = "occurred_at"
	importColumnExternalRef = "external_ref_id"
	importColumnAmount      = "amount"
	importColumnCurrency    = "currency"
)

// importColumnFallbacks 标准列缺失时依次尝试的列名
var importColumnFallbacks = map[string][]string{
	importColumnTrackingID: {"subid"},
	importColumnOccurredAt: {"date"},
}

var importDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

var errImportRowInvalid = fmt.Errorf("import row invalid: %w", ErrInvalidInput)

// BatchImportService 对账文件批量导入服务
type BatchImportService struct {
	batchRepo   repository.ImportBatchRepository
	siteRepo    repository.PartnerSiteRepository
	linkRepo    repository.AttributionLinkRepository
	conversions *ConversionService
	queueClient *queue.Client
	cfg         config.ImportConfig
	reportLimit int
	now         func() time.Time
}

// NewBatchImportService 创建对账导入服务
func NewBatchImportService(
	batchRepo repository.ImportBatchRepository,
	siteRepo repository.PartnerSiteRepository,
	linkRepo repository.AttributionLinkRepository,
	conversions *ConversionService,
	queueClient *queue.Client,
	cfg config.ImportConfig,
	reportLimit int,
) *BatchImportService {
	if reportLimit <= 0 {
		reportLimit = 10
	}
	return &BatchImportService{
		batchRepo:   batchRepo,
		siteRepo:    siteRepo,
		linkRepo:    linkRepo,
		conversions: conversions,
		queueClient: queueClient,
		cfg:         cfg,
		reportLimit: reportLimit,
		now:         time.Now,
	}
}

// BatchImportInput 对账导入输入
type BatchImportInput struct {
	PartnerSiteID uint
	Period        string
	FileName      string
	ColumnMapping map[string]string
	Rows          []map[string]string
	DryRun        bool
	Actor         string
}

// BatchImportResult 对账导入汇总
type BatchImportResult struct {
	BatchID        uint                    `json:"batch_id"`
	Status         string                  `json:"status"`
	TotalRows      int                     `json:"total_rows"`
	ProcessedRows  int                     `json:"processed_rows"`
	ErrorRows      int                     `json:"error_rows"`
	DuplicateRows  int                     `json:"duplicate_rows"`
	UnresolvedRows int                     `json:"unresolved_rows"`
	Errors         []models.ImportRowError `json:"errors"`
	DryRun         bool                    `json:"dry_run,omitempty"`
}

type importRowOutcome struct {
	done       bool
	duplicate  bool
	unresolved bool
	err        error
}

// Import 导入对账行；行数超过阈值且队列可用时转为异步处理
func (s *BatchImportService) Import(ctx context.Context, input BatchImportInput) (*BatchImportResult, error) {
	site, err := s.siteRepo.GetByID(input.PartnerSiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrPartnerSiteNotFound
	}
	period := strings.TrimSpace(input.Period)
	if _, _, err := ParsePeriod(period); err != nil {
		return nil, err
	}
	if len(input.Rows) == 0 {
		return nil, ErrImportRowsEmpty
	}

	if input.DryRun {
		outcomes := s.processRows(ctx, site, nil, input.ColumnMapping, input.Rows, true, input.Actor)
		result := summarizeImport(outcomes, s.reportLimit)
		result.Status = constants.ImportBatchStatusCompleted
		result.DryRun = true
		return result, nil
	}

	batch := &models.ImportBatch{
		PartnerSiteID: site.ID,
		Period:        period,
		FileName:      strings.TrimSpace(input.FileName),
		TotalRows:     len(input.Rows),
		Errors:        models.ImportRowErrors{},
		Status:        constants.ImportBatchStatusProcessing,
		ImportedBy:    strings.TrimSpace(input.Actor),
	}
	if err := s.batchRepo.Create(batch); err != nil {
		return nil, err
	}
	logger.Infow("import_batch_created", "batch_id", batch.ID, "partner_site_id", site.ID, "period", period, "total_rows", batch.TotalRows, "actor", batch.ImportedBy)

	if s.shouldQueue(len(input.Rows)) {
		rows := make([]queue.ConversionBatchImportRow, 0, len(input.Rows))
		for _, row := range input.Rows {
			rows = append(rows, queue.ConversionBatchImportRow(row))
		}
		err := s.queueClient.EnqueueConversionBatchImport(queue.ConversionBatchImportPayload{
			BatchID:       batch.ID,
			PartnerSiteID: site.ID,
			Period:        period,
			ColumnMapping: input.ColumnMapping,
			Rows:          rows,
		})
		if err == nil {
			logger.Infow("import_batch_enqueued", "batch_id", batch.ID, "rows", len(rows))
			return &BatchImportResult{
				BatchID:   batch.ID,
				Status:    constants.ImportBatchStatusProcessing,
				TotalRows: batch.TotalRows,
				Errors:    []models.ImportRowError{},
			}, nil
		}
		logger.Warnw("import_batch_enqueue_failed_fallback_sync", "batch_id", batch.ID, "error", err)
	}
	return s.ProcessBatch(ctx, batch.ID, input.ColumnMapping, input.Rows)
}

// ProcessBatch 处理已登记批次的全部行并回写汇总
func (s *BatchImportService) ProcessBatch(ctx context.Context, batchID uint, mapping map[string]string, rows []map[string]string) (*BatchImportResult, error) {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrImportBatchNotFound
	}
	if batch.Status != constants.ImportBatchStatusProcessing {
		return nil, fmt.Errorf("import batch %d already %s: %w", batch.ID, strings.ToLower(batch.Status), ErrInvalidState)
	}
	site, err := s.siteRepo.GetByID(batch.PartnerSiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		s.failBatch(batch, "partner site not found")
		return nil, ErrPartnerSiteNotFound
	}

	outcomes := s.processRows(ctx, site, &batch.ID, mapping, rows, false, batch.ImportedBy)
	result := summarizeImport(outcomes, s.reportLimit)
	result.BatchID = batch.ID
	result.Status = constants.ImportBatchStatusCompleted

	completedAt := s.now().UTC()
	batch.TotalRows = result.TotalRows
	batch.ProcessedRows = result.ProcessedRows
	batch.ErrorRows = result.ErrorRows
	batch.DuplicateRows = result.DuplicateRows
	batch.UnresolvedRows = result.UnresolvedRows
	batch.Errors = collectRowErrors(outcomes, importStoredErrorLimit)
	batch.Status = constants.ImportBatchStatusCompleted
	batch.CompletedAt = &completedAt
	if err := s.batchRepo.Update(batch); err != nil {
		logger.Errorw("import_batch_update_failed", "batch_id", batch.ID, "error", err)
		return nil, err
	}
	logger.Infow("import_batch_completed",
		"batch_id", batch.ID,
		"partner_site_id", site.ID,
		"total_rows", result.TotalRows,
		"processed_rows", result.ProcessedRows,
		"error_rows", result.ErrorRows,
		"duplicate_rows", result.DuplicateRows,
		"unresolved_rows", result.UnresolvedRows,
	)
	return result, nil
}

// Get 获取导入批次
func (s *BatchImportService) Get(id uint) (*models.ImportBatch, error) {
	batch, err := s.batchRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrImportBatchNotFound
	}
	return batch, nil
}

// List 分页查询导入批次
func (s *BatchImportService) List(filter repository.ImportBatchListFilter) ([]models.ImportBatch, int64, error) {
	return s.batchRepo.List(filter)
}

func (s *BatchImportService) shouldQueue(rows int) bool {
	return s.cfg.AsyncRowThreshold > 0 && rows > s.cfg.AsyncRowThreshold && s.queueClient != nil && s.queueClient.Enabled()
}

func (s *BatchImportService) failBatch(batch *models.ImportBatch, message string) {
	completedAt := s.now().UTC()
	batch.Status = constants.ImportBatchStatusFailed
	batch.CompletedAt = &completedAt
	batch.Errors = models.ImportRowErrors{{Row: 0, Message: message}}
	if err := s.batchRepo.Update(batch); err != nil {
		logger.Errorw("import_batch_update_failed", "batch_id", batch.ID, "error", err)
	}
}

// processRows 处理各行，单行失败互不影响，结果按行号顺序返回
// APPROVED 行会改变月度佣金量，按行号顺序串行处理；其余行并发处理
func (s *BatchImportService) processRows(
	ctx context.Context,
	site *models.PartnerSite,
	batchID *uint,
	mapping map[string]string,
	rows []map[string]string,
	dryRun bool,
	actor string,
) []importRowOutcome {
	outcomes := make([]importRowOutcome, len(rows))
	mapped := make([]map[string]string, len(rows))
	for i := range rows {
		mapped[i] = applyColumnMapping(rows[i], mapping)
	}
	run := func(idx int) {
		defer func() {
			if r := recover(); r != nil {
				outcomes[idx] = importRowOutcome{err: fmt.Errorf("row panic: %v", r)}
			}
			outcomes[idx].done = true
		}()
		outcomes[idx] = s.processRow(site, batchID, mapped[idx], dryRun, actor)
	}

	parallel := make([]int, 0, len(rows))
	for i := range mapped {
		if !isApprovedImportRow(mapped[i]) {
			parallel = append(parallel, i)
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		run(i)
	}

	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = importDefaultConcurrency
	}
	pool := pond.NewPool(concurrency, pond.WithContext(ctx))
	group := pool.NewGroup()
	for _, i := range parallel {
		idx := i
		group.Submit(func() { run(idx) })
	}
	if err := group.Wait(); err != nil {
		logger.Warnw("import_rows_wait_failed", "partner_site_id", site.ID, "error", err)
	}
	pool.StopAndWait()
	for i := range outcomes {
		if !outcomes[i].done {
			outcomes[i].err = errors.New("row not processed")
		}
	}
	return outcomes
}

func isApprovedImportRow(row map[string]string) bool {
	return strings.EqualFold(importValue(row, importColumnStatus), constants.ConversionStatusApproved)
}

func (s *BatchImportService) processRow(site *models.PartnerSite, batchID *uint, row map[string]string, dryRun bool, actor string) importRowOutcome {
	trackingID := importValue(row, importColumnTrackingID)
	if trackingID == "" {
		return importRowOutcome{err: rowError("missing %s", importColumnTrackingID)}
	}

	eventType := constants.ConversionEventRegister
	if raw := importValue(row, importColumnEventType); raw != "" {
		normalized, ok := NormalizeEventType(raw)
		if !ok {
			return importRowOutcome{err: rowError("unknown event type %q", raw)}
		}
		eventType = normalized
	}

	status := constants.ConversionStatusPending
	if raw := importValue(row, importColumnStatus); raw != "" {
		switch upper := strings.ToUpper(raw); upper {
		case constants.ConversionStatusPending, constants.ConversionStatusApproved, constants.ConversionStatusRejected:
			status = upper
		default:
			return importRowOutcome{err: rowError("unknown status %q", raw)}
		}
	}

	occurredAt := s.now().UTC()
	if raw := importValue(row, importColumnOccurredAt); raw != "" {
		parsed, err := parseImportDate(raw)
		if err != nil {
			return importRowOutcome{err: rowError("invalid date %q", raw)}
		}
		occurredAt = parsed
	}

	var grossAmount *int64
	if raw := importValue(row, importColumnAmount); raw != "" {
		amount, err := models.ParseMajorAmount(raw)
		if err != nil || amount < 0 {
			return importRowOutcome{err: rowError("invalid amount %q", raw)}
		}
		grossAmount = &amount
	}

	currency := strings.ToUpper(importValue(row, importColumnCurrency))
	if currency == "" {
		currency = constants.DefaultCurrency
	}

	link, err := s.linkRepo.MatchTrackingID(site.ID, trackingID)
	if err != nil {
		return importRowOutcome{err: err}
	}
	draft := conversionDraft{
		site:              site,
		link:              link,
		trackingReference: trackingID,
		externalRef:       importValue(row, importColumnExternalRef),
		eventType:         eventType,
		grossAmount:       grossAmount,
		currency:          currency,
		occurredAt:        occurredAt,
		source:            constants.ConversionSourceBatch,
		sourceBatchID:     batchID,
		targetStatus:      status,
		actor:             actor,
		dryRun:            dryRun,
		allowUnassigned:   true,
	}
	if status == constants.ConversionStatusRejected {
		draft.rejectionReason = importRejectedReason
	}
	result, err := s.conversions.ingest(draft)
	if err != nil {
		return importRowOutcome{err: err}
	}
	if link == nil {
		logger.Infow("import_row_unresolved", "partner_site_id", site.ID, "tracking_id", trackingID, "conversion_id", result.Conversion.ID)
	}
	return importRowOutcome{duplicate: result.Duplicate, unresolved: link == nil}
}

func summarizeImport(outcomes []importRowOutcome, reportLimit int) *BatchImportResult {
	result := &BatchImportResult{TotalRows: len(outcomes)}
	for _, outcome := range outcomes {
		if outcome.err != nil {
			result.ErrorRows++
			continue
		}
		result.ProcessedRows++
		if outcome.duplicate {
			result.DuplicateRows++
		}
		if outcome.unresolved {
			result.UnresolvedRows++
		}
	}
	result.Errors = collectRowErrors(outcomes, reportLimit)
	return result
}

// collectRowErrors 收集行错误，行号从 1 开始
func collectRowErrors(outcomes []importRowOutcome, limit int) models.ImportRowErrors {
	errs := make(models.ImportRowErrors, 0)
	for i, outcome := range outcomes {
		if outcome.err == nil {
			continue
		}
		if limit > 0 && len(errs) >= limit {
			break
		}
		message := outcome.err.Error()
		if errors.Is(outcome.err, errImportRowInvalid) {
			message = strings.TrimSuffix(message, ": "+errImportRowInvalid.Error())
		}
		errs = append(errs, models.ImportRowError{Row: i + 1, Message: message})
	}
	return errs
}

func rowError(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, errImportRowInvalid)...)
}

// applyColumnMapping 按映射重命名列，列名统一小写
func applyColumnMapping(row map[string]string, mapping map[string]string) map[string]string {
	lowerMapping := make(map[string]string, len(mapping))
	for from, to := range mapping {
		lowerMapping[strings.ToLower(strings.TrimSpace(from))] = strings.ToLower(strings.TrimSpace(to))
	}
	normalized := make(map[string]string, len(row))
	for key, value := range row {
		column := strings.ToLower(strings.TrimSpace(key))
		if target, ok := lowerMapping[column]; ok && target != "" {
			column = target
		}
		value = strings.TrimSpace(value)
		if existing, ok := normalized[column]; ok && existing != "" && value == "" {
			continue
		}
		normalized[column] = value
	}
	return normalized
}

func importValue(row map[string]string, column string) string {
	if value := strings.TrimSpace(row[column]); value != "" {
		return value
	}
	for _, fallback := range importColumnFallbacks[column] {
		if value := strings.TrimSpace(row[fallback]); value != "" {
			return value
		}
	}
	return ""
}

func parseImportDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range importDateLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
