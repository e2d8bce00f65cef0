package service

import (
	"regexp"
	"strings"
	"time"
)

const periodLayout = "2006-01"

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParsePeriod 解析 YYYY-MM 结算周期，返回 UTC 下的 [start, end) 区间
func ParsePeriod(raw string) (time.Time, time.Time, error) {
	period := strings.TrimSpace(raw)
	if !periodPattern.MatchString(period) {
		return time.Time{}, time.Time{}, ErrPeriodInvalid
	}
	start, err := time.ParseInLocation(periodLayout, period, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrPeriodInvalid
	}
	return start, start.AddDate(0, 1, 0), nil
}

// FormatPeriod 将时间格式化为所在 UTC 月份的周期键
func FormatPeriod(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// currentMonthRange 返回 now 所在 UTC 自然月
func currentMonthRange(now time.Time) (time.Time, time.Time) {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
