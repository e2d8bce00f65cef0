package service

import (
	"strings"
	"time"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/metrics"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/repository"
)

// PayoutService 月度结算服务
type PayoutService struct {
	payoutRepo  repository.PayoutRepository
	convRepo    repository.ConversionRepository
	queueClient *queue.Client
	currency    string
	now         func() time.Time
}

// NewPayoutService 创建结算服务
func NewPayoutService(
	payoutRepo repository.PayoutRepository,
	convRepo repository.ConversionRepository,
	queueClient *queue.Client,
	currency string,
) *PayoutService {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = constants.DefaultCurrency
	}
	return &PayoutService{
		payoutRepo:  payoutRepo,
		convRepo:    convRepo,
		queueClient: queueClient,
		currency:    currency,
		now:         time.Now,
	}
}

// MarkPaidInput 付款标记输入
type MarkPaidInput struct {
	Method    string
	Reference string
	Notes     string
	Actor     string
}

// GenerateForPeriod 为周期内有已审核转化的推广者生成结算单，已存在的推广者整体跳过
func (s *PayoutService) GenerateForPeriod(period string) ([]models.Payout, error) {
	period = strings.TrimSpace(period)
	from, to, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	aggregates, err := s.convRepo.AggregateApprovedByPromoter(from, to)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0)
	grouped := make(map[string]models.PayoutHouseBreakdown)
	for _, row := range aggregates {
		if _, ok := grouped[row.PromoterID]; !ok {
			order = append(order, row.PromoterID)
		}
		grouped[row.PromoterID] = append(grouped[row.PromoterID], models.PayoutHouseItem{
			PartnerSiteID:   row.PartnerSiteID,
			ConversionCount: row.ConversionCount,
			Amount:          row.Amount,
		})
	}

	created := make([]models.Payout, 0, len(order))
	skipped := 0
	for _, promoterID := range order {
		existing, err := s.payoutRepo.FindByPeriodAndPromoter(period, promoterID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			skipped++
			continue
		}
		breakdown := grouped[promoterID]
		payout := models.Payout{
			PromoterID:     promoterID,
			Period:         period,
			HouseBreakdown: breakdown,
			Currency:       s.currency,
			Status:         constants.PayoutStatusPending,
		}
		for _, item := range breakdown {
			payout.TotalConversions += item.ConversionCount
			payout.TotalAmount += item.Amount
		}
		if err := s.payoutRepo.Create(&payout); err != nil {
			if repository.IsUniqueViolation(err) {
				logger.Infow("payout_generate_concurrent_skip", "promoter_id", promoterID, "period", period)
				skipped++
				continue
			}
			return created, err
		}
		logger.Infow("payout_created",
			"payout_id", payout.ID,
			"promoter_id", promoterID,
			"period", period,
			"total_conversions", payout.TotalConversions,
			"total_amount", payout.TotalAmount,
			"currency", payout.Currency,
		)
		created = append(created, payout)
	}
	metrics.AddPayoutsGenerated(len(created))
	logger.Infow("payout_generate_completed", "period", period, "created", len(created), "skipped", skipped)
	return created, nil
}

// EnqueueGenerate 异步生成结算单
func (s *PayoutService) EnqueueGenerate(period, actor string) error {
	if _, _, err := ParsePeriod(period); err != nil {
		return err
	}
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return ErrQueueUnavailable
	}
	return s.queueClient.EnqueuePayoutGenerate(queue.PayoutGeneratePayload{
		Period: strings.TrimSpace(period),
		Actor:  strings.TrimSpace(actor),
	})
}

// MarkPaid 标记已付款，仅允许 PENDING -> PAID 一次
func (s *PayoutService) MarkPaid(id uint, input MarkPaidInput) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	if payout.Status == constants.PayoutStatusPaid {
		return nil, ErrPayoutAlreadyPaid
	}

	now := s.now().UTC()
	actor := strings.TrimSpace(input.Actor)
	updates := map[string]interface{}{
		"status":            constants.PayoutStatusPaid,
		"payment_method":    strings.TrimSpace(input.Method),
		"payment_reference": strings.TrimSpace(input.Reference),
		"notes":             strings.TrimSpace(input.Notes),
		"paid_at":           now,
		"paid_by":           actor,
		"updated_at":        now,
	}
	ok, err := s.payoutRepo.MarkPaid(payout.ID, constants.PayoutStatusPending, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPayoutAlreadyPaid
	}

	previousStatus := payout.Status
	payout.Status = constants.PayoutStatusPaid
	payout.PaymentMethod = updates["payment_method"].(string)
	payout.PaymentReference = updates["payment_reference"].(string)
	payout.Notes = updates["notes"].(string)
	payout.PaidAt = &now
	payout.PaidBy = actor
	logger.Infow("payout_paid",
		"payout_id", payout.ID,
		"promoter_id", payout.PromoterID,
		"period", payout.Period,
		"status_before", previousStatus,
		"status_after", payout.Status,
		"total_amount", payout.TotalAmount,
		"payment_method", payout.PaymentMethod,
		"payment_reference", payout.PaymentReference,
		"actor", actor,
	)
	return payout, nil
}

// Get 获取结算单
func (s *PayoutService) Get(id uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

// List 分页查询结算单
func (s *PayoutService) List(filter repository.PayoutListFilter) ([]models.Payout, int64, error) {
	return s.payoutRepo.List(filter)
}
