package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray 字符串数组类型，用于存储国家代码集合
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	return scanJSONColumn(value, s, func() { *s = StringArray{} })
}

// Contains 判断是否包含（大小写不敏感）
func (s StringArray) Contains(value string) bool {
	target := strings.TrimSpace(value)
	if target == "" {
		return false
	}
	for _, item := range s {
		if strings.EqualFold(strings.TrimSpace(item), target) {
			return true
		}
	}
	return false
}

// PayoutHouseItem 结算单按合作站点拆分的明细
type PayoutHouseItem struct {
	PartnerSiteID   uint  `json:"partner_site_id"`
	ConversionCount int64 `json:"conversion_count"`
	Amount          int64 `json:"amount"`
}

// PayoutHouseBreakdown 结算单拆分明细列表
type PayoutHouseBreakdown []PayoutHouseItem

// Value 实现 driver.Valuer 接口
func (b PayoutHouseBreakdown) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan 实现 sql.Scanner 接口
func (b *PayoutHouseBreakdown) Scan(value interface{}) error {
	return scanJSONColumn(value, b, func() { *b = PayoutHouseBreakdown{} })
}

// ImportRowError 导入行错误
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportRowErrors 导入行错误列表
type ImportRowErrors []ImportRowError

// Value 实现 driver.Valuer 接口
func (e ImportRowErrors) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan 实现 sql.Scanner 接口
func (e *ImportRowErrors) Scan(value interface{}) error {
	return scanJSONColumn(value, e, func() { *e = ImportRowErrors{} })
}

// scanJSONColumn sqlite 返回 string，postgres 返回 []byte
func scanJSONColumn(value interface{}, dest interface{}, reset func()) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		reset()
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		reset()
		return nil
	}
	return json.Unmarshal(raw, dest)
}
