package models

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	minorUnitFactor = decimal.NewFromInt(100)
	maxMinorAmount  = decimal.NewFromInt(math.MaxInt64)
	minMinorAmount  = decimal.NewFromInt(math.MinInt64)
)

// ErrAmountInvalid 金额格式非法
var ErrAmountInvalid = errors.New("amount invalid")

// ParseMajorAmount 解析主币种金额字符串（如 "12.5"）为最小货币单位
// 舍入规则为四舍五入（远离零）。
func ParseMajorAmount(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, ",") && !strings.Contains(trimmed, ".") {
		trimmed = strings.ReplaceAll(trimmed, ",", ".")
	}
	if trimmed == "" {
		return 0, ErrAmountInvalid
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrAmountInvalid
	}
	return MajorToMinor(amount)
}

// MajorToMinor 主币种金额转最小货币单位，超出 int64 范围返回 ErrAmountInvalid
func MajorToMinor(amount decimal.Decimal) (int64, error) {
	scaled := amount.Mul(minorUnitFactor).Round(0)
	if scaled.GreaterThan(maxMinorAmount) || scaled.LessThan(minMinorAmount) {
		return 0, ErrAmountInvalid
	}
	return scaled.IntPart(), nil
}
