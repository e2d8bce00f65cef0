package service

import (
	"strings"

	"github.com/tipster-link/internal/config"
	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	maxPercent = decimal.NewFromInt(100)
)

// GatewayFeeRule 支付通道手续费规则：按比例加固定金额
type GatewayFeeRule struct {
	Percent decimal.Decimal
	Fixed   int64
}

var gatewayFeeTable = map[string]GatewayFeeRule{
	constants.PaymentChannelStripe:          {Percent: decimal.RequireFromString("2.9"), Fixed: 30},
	constants.PaymentChannelRedsys:          {Percent: decimal.RequireFromString("0.5"), Fixed: 0},
	constants.PaymentChannelStripeSimulated: {Percent: decimal.RequireFromString("2.9"), Fixed: 30},
	constants.PaymentChannelDefault:         {Percent: decimal.RequireFromString("2.5"), Fixed: 0},
}

// LookupGatewayFeeRule 查询通道手续费规则，未知通道回落到默认行
func LookupGatewayFeeRule(channel string) GatewayFeeRule {
	if rule, ok := gatewayFeeTable[strings.ToLower(strings.TrimSpace(channel))]; ok {
		return rule
	}
	return gatewayFeeTable[constants.PaymentChannelDefault]
}

// CommissionRates 平台费率档位
type CommissionRates struct {
	StandardPercent     decimal.Decimal
	HighVolumePercent   decimal.Decimal
	HighVolumeThreshold int64
}

// NewCommissionRates 从配置构建费率档位
func NewCommissionRates(cfg config.CommissionConfig) CommissionRates {
	return CommissionRates{
		StandardPercent:     decimal.NewFromFloat(cfg.StandardPercent),
		HighVolumePercent:   decimal.NewFromFloat(cfg.HighVolumePercent),
		HighVolumeThreshold: cfg.HighVolumeThreshold,
	}
}

// CommissionBreakdown 单笔佣金拆分结果，net 恒为余数
type CommissionBreakdown struct {
	GrossAmount        int64           `json:"gross_amount"`
	GatewayFee         int64           `json:"gateway_fee"`
	PlatformFeePercent decimal.Decimal `json:"platform_fee_percent"`
	PlatformFee        int64           `json:"platform_fee"`
	NetAmount          int64           `json:"net_amount"`
	Tier               string          `json:"tier"`
}

// ResolveFeeTier 按 自定义 > 高业绩 > 标准 的顺序确定平台费率
func ResolveFeeTier(cfg *models.CommissionConfig, monthlyVolume int64, rates CommissionRates) (decimal.Decimal, string) {
	standard := rates.StandardPercent
	if cfg != nil {
		if cfg.UseCustomFee && cfg.CustomFeePercent.Valid {
			return cfg.CustomFeePercent.Decimal, constants.CommissionTierCustom
		}
		if cfg.AutoTierEnabled && rates.HighVolumeThreshold > 0 && monthlyVolume >= rates.HighVolumeThreshold {
			return rates.HighVolumePercent, constants.CommissionTierHighVolume
		}
		standard = cfg.StandardFeePercent
	}
	return standard, constants.CommissionTierStandard
}

// CalculateCommission 计算网关费、平台费与净佣金
func CalculateCommission(gross int64, channel string, cfg *models.CommissionConfig, monthlyVolume int64, rates CommissionRates) (CommissionBreakdown, error) {
	if gross < 0 {
		return CommissionBreakdown{}, ErrGrossAmountNegative
	}
	percent, tier := ResolveFeeTier(cfg, monthlyVolume, rates)
	if !validPercent(percent) {
		return CommissionBreakdown{}, ErrFeePercentOutOfRange
	}

	rule := LookupGatewayFeeRule(channel)
	grossDec := decimal.NewFromInt(gross)
	gatewayFee := rule.Percent.Div(hundred).Mul(grossDec).Round(0).IntPart() + rule.Fixed
	if gatewayFee > gross {
		gatewayFee = gross
	}
	if gatewayFee < 0 {
		gatewayFee = 0
	}

	base := gross - gatewayFee
	platformFee := percent.Div(hundred).Mul(decimal.NewFromInt(base)).Round(0).IntPart()
	if platformFee > base {
		platformFee = base
	}

	return CommissionBreakdown{
		GrossAmount:        gross,
		GatewayFee:         gatewayFee,
		PlatformFeePercent: percent,
		PlatformFee:        platformFee,
		NetAmount:          gross - gatewayFee - platformFee,
		Tier:               tier,
	}, nil
}

func validPercent(percent decimal.Decimal) bool {
	return !percent.IsNegative() && percent.LessThanOrEqual(maxPercent)
}
