package models

import "time"

// ClickEvent 点击记录（只追加，不修改）
type ClickEvent struct {
	ID            uint      `gorm:"primarykey" json:"id"`                           // 主键
	PromoterID    string    `gorm:"type:varchar(64);not null;index" json:"promoter_id"` // 推广者ID
	PartnerSiteID uint      `gorm:"not null;index" json:"partner_site_id"`          // 合作站点ID
	LinkID        uint      `gorm:"not null;index" json:"link_id"`                  // 归因链接ID
	IPAddress     string    `gorm:"type:varchar(64)" json:"ip_address"`             // 访客IP
	CountryCode   string    `gorm:"type:varchar(2)" json:"country_code,omitempty"`  // 国家代码（未知为空）
	UserAgent     string    `gorm:"type:varchar(1024)" json:"user_agent"`           // 客户端UA
	Referrer      string    `gorm:"type:varchar(1024)" json:"referrer"`             // 来源地址
	WasBlocked    bool      `gorm:"not null;index" json:"was_blocked"`              // 是否被地域策略拦截
	BlockReason   string    `gorm:"type:varchar(255)" json:"block_reason,omitempty"` // 拦截原因
	OutboundURL   string    `gorm:"type:varchar(2048)" json:"outbound_url,omitempty"` // 跳转地址
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                        // 点击时间
}

// TableName 指定表名
func (ClickEvent) TableName() string {
	return "click_events"
}
