package service

import (
	"strings"
	"time"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/models"
	"github.com/tipster-link/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionService 推广者佣金配置与计算服务
type CommissionService struct {
	repo     repository.CommissionRepository
	convRepo repository.ConversionRepository
	rates    CommissionRates
	channel  string
	now      func() time.Time
}

// NewCommissionService 创建佣金服务
func NewCommissionService(
	repo repository.CommissionRepository,
	convRepo repository.ConversionRepository,
	rates CommissionRates,
	payoutChannel string,
) *CommissionService {
	channel := strings.ToLower(strings.TrimSpace(payoutChannel))
	if channel == "" {
		channel = constants.PaymentChannelDefault
	}
	return &CommissionService{
		repo:     repo,
		convRepo: convRepo,
		rates:    rates,
		channel:  channel,
		now:      time.Now,
	}
}

// CommissionOverview 佣金配置及当前生效档位
type CommissionOverview struct {
	Config           *models.CommissionConfig `json:"config"`
	MonthlyVolume    int64                    `json:"monthly_volume"`
	EffectiveTier    string                   `json:"effective_tier"`
	EffectivePercent decimal.Decimal          `json:"effective_percent"`
}

// CommissionConfigUpdate 管理端佣金配置变更输入
type CommissionConfigUpdate struct {
	CustomFeePercent *decimal.Decimal
	UseCustomFee     bool
	AutoTierEnabled  bool
	Reason           string
	Actor            string
}

// GetConfig 获取推广者配置，不存在时按系统默认值创建
func (s *CommissionService) GetConfig(promoterID string) (*models.CommissionConfig, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return nil, ErrPromoterIDRequired
	}
	cfg, err := s.repo.GetConfig(promoterID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	created, err := s.repo.CreateConfigIfAbsent(&models.CommissionConfig{
		PromoterID:         promoterID,
		StandardFeePercent: s.rates.StandardPercent,
		UseCustomFee:       false,
		AutoTierEnabled:    true,
	})
	if err != nil {
		return nil, err
	}
	logger.Debugw("commission_config_created", "promoter_id", promoterID, "standard_fee_percent", created.StandardFeePercent.String())
	return created, nil
}

// MonthlyVolume 当前 UTC 自然月已审核佣金总额
func (s *CommissionService) MonthlyVolume(promoterID string) (int64, error) {
	from, to := currentMonthRange(s.now())
	return s.convRepo.SumApprovedCommission(promoterID, from, to)
}

// GetOverview 获取配置与生效档位
func (s *CommissionService) GetOverview(promoterID string) (*CommissionOverview, error) {
	cfg, err := s.GetConfig(promoterID)
	if err != nil {
		return nil, err
	}
	volume, err := s.MonthlyVolume(cfg.PromoterID)
	if err != nil {
		return nil, err
	}
	percent, tier := ResolveFeeTier(cfg, volume, s.rates)
	return &CommissionOverview{
		Config:           cfg,
		MonthlyVolume:    volume,
		EffectiveTier:    tier,
		EffectivePercent: percent,
	}, nil
}

// Calculate 按系统结算通道计算佣金拆分
func (s *CommissionService) Calculate(promoterID string, gross int64) (CommissionBreakdown, error) {
	return s.Preview(promoterID, gross, s.channel)
}

// Preview 按指定通道试算佣金拆分
func (s *CommissionService) Preview(promoterID string, gross int64, channel string) (CommissionBreakdown, error) {
	if gross < 0 {
		return CommissionBreakdown{}, ErrGrossAmountNegative
	}
	cfg, err := s.GetConfig(promoterID)
	if err != nil {
		return CommissionBreakdown{}, err
	}
	volume, err := s.MonthlyVolume(cfg.PromoterID)
	if err != nil {
		return CommissionBreakdown{}, err
	}
	if strings.TrimSpace(channel) == "" {
		channel = s.channel
	}
	return CalculateCommission(gross, channel, cfg, volume, s.rates)
}

// UpdateConfig 管理端覆盖配置，同时追加审计记录
func (s *CommissionService) UpdateConfig(promoterID string, input CommissionConfigUpdate) (*CommissionOverview, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, ErrCommissionReasonEmpty
	}
	if input.CustomFeePercent != nil && !validPercent(*input.CustomFeePercent) {
		return nil, ErrFeePercentOutOfRange
	}
	cfg, err := s.GetConfig(promoterID)
	if err != nil {
		return nil, err
	}
	if input.UseCustomFee && input.CustomFeePercent == nil && !cfg.CustomFeePercent.Valid {
		return nil, ErrCustomPercentRequired
	}
	volume, err := s.MonthlyVolume(cfg.PromoterID)
	if err != nil {
		return nil, err
	}

	before := *cfg
	previousPercent, previousTier := ResolveFeeTier(&before, volume, s.rates)

	if input.CustomFeePercent != nil {
		cfg.CustomFeePercent = decimal.NewNullDecimal(input.CustomFeePercent.Round(2))
	}
	cfg.UseCustomFee = input.UseCustomFee
	cfg.AutoTierEnabled = input.AutoTierEnabled
	cfg.UpdatedBy = strings.TrimSpace(input.Actor)
	newPercent, newTier := ResolveFeeTier(cfg, volume, s.rates)

	changeType := constants.CommissionChangeManualOverride
	if !cfg.UseCustomFee {
		changeType = constants.CommissionChangeResetToDefault
	}
	record := &models.CommissionChangeRecord{
		PromoterID:        cfg.PromoterID,
		ChangeType:        changeType,
		PreviousPercent:   previousPercent,
		NewPercent:        newPercent,
		PreviousUseCustom: before.UseCustomFee,
		NewUseCustom:      cfg.UseCustomFee,
		Reason:            reason,
		Actor:             cfg.UpdatedBy,
		MonthlyVolume:     volume,
	}
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateConfig(cfg); err != nil {
			return err
		}
		return repo.CreateChangeRecord(record)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("commission_config_updated",
		"promoter_id", cfg.PromoterID,
		"change_type", changeType,
		"previous_percent", previousPercent.String(),
		"new_percent", newPercent.String(),
		"previous_tier", previousTier,
		"new_tier", newTier,
		"monthly_volume", volume,
		"actor", record.Actor,
		"reason", reason,
	)
	return &CommissionOverview{
		Config:           cfg,
		MonthlyVolume:    volume,
		EffectiveTier:    newTier,
		EffectivePercent: newPercent,
	}, nil
}

// History 查询配置变更历史
func (s *CommissionService) History(filter repository.CommissionHistoryFilter) ([]models.CommissionChangeRecord, int64, error) {
	return s.repo.ListChangeRecords(filter)
}
