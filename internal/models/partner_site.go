package models

import (
	"time"

	"github.com/tipster-link/internal/constants"
)

// PartnerSite 合作站点（推广目标站点）
type PartnerSite struct {
	ID                      uint        `gorm:"primarykey" json:"id"`                                                 // 主键
	Slug                    string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`                    // 唯一标识（小写）
	Name                    string      `gorm:"type:varchar(128);not null" json:"name"`                               // 名称
	LogoURL                 string      `gorm:"type:varchar(512)" json:"logo_url"`                                    // Logo 地址
	Status                  string      `gorm:"type:varchar(16);not null;index" json:"status"`                        // ACTIVE / INACTIVE
	OutboundURLTemplate     string      `gorm:"type:varchar(1024);not null" json:"outbound_url_template"`             // 跳转地址模板
	TrackingParamName       string      `gorm:"type:varchar(64);not null" json:"tracking_param_name"`                 // 跟踪参数名
	CommissionPerConversion int64       `gorm:"not null;default:0" json:"commission_per_conversion"`                  // 单次转化佣金（最小货币单位）
	AllowedCountries        StringArray `gorm:"type:json" json:"allowed_countries"`                                   // 允许国家（空=全部）
	BlockedCountries        StringArray `gorm:"type:json" json:"blocked_countries"`                                   // 屏蔽国家
	CreatedAt               time.Time   `gorm:"index" json:"created_at"`                                              // 创建时间
	UpdatedAt               time.Time   `gorm:"index" json:"updated_at"`                                              // 更新时间
}

// TableName 指定表名
func (PartnerSite) TableName() string {
	return "partner_sites"
}

// IsActive 是否启用
func (p *PartnerSite) IsActive() bool {
	return p != nil && p.Status == constants.PartnerSiteStatusActive
}

// AllowsCountry 判断国家是否满足地域策略，未知国家一律放行
func (p *PartnerSite) AllowsCountry(countryCode string) bool {
	if p == nil || countryCode == "" {
		return true
	}
	if len(p.AllowedCountries) > 0 && !p.AllowedCountries.Contains(countryCode) {
		return false
	}
	return !p.BlockedCountries.Contains(countryCode)
}
