package models

import "time"

// AttributionLink 推广者与合作站点的归因链接（每对唯一）
type AttributionLink struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                                                        // 主键
	PromoterID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_attribution_links_pair,priority:1" json:"promoter_id"` // 推广者ID
	PartnerSiteID    uint      `gorm:"not null;index;uniqueIndex:idx_attribution_links_pair,priority:2" json:"partner_site_id"`        // 合作站点ID
	RedirectToken    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"redirect_token"`                                  // 跳转令牌
	TotalClicks      int64     `gorm:"not null;default:0" json:"total_clicks"`                                                        // 放行点击数
	TotalConversions int64     `gorm:"not null;default:0" json:"total_conversions"`                                                   // 已审核转化数
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                                                       // 创建时间
	UpdatedAt        time.Time `json:"updated_at"`                                                                                    // 更新时间

	PartnerSite *PartnerSite `gorm:"foreignKey:PartnerSiteID" json:"partner_site,omitempty"` // 合作站点
}

// TableName 指定表名
func (AttributionLink) TableName() string {
	return "attribution_links"
}
