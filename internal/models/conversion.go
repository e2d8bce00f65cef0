package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Conversion 转化记录
type Conversion struct {
	ID                  uint            `gorm:"primarykey" json:"id"`                                                                               // 主键
	PartnerSiteID       uint            `gorm:"not null;index;uniqueIndex:idx_conversions_partner_external,priority:1" json:"partner_site_id"`       // 合作站点ID
	PromoterID          *string         `gorm:"type:varchar(64);index" json:"promoter_id"`                                                          // 推广者ID（未归因为空）
	LinkID              *uint           `gorm:"index" json:"link_id,omitempty"`                                                                     // 归因链接ID
	ClickEventID        *uint           `json:"click_event_id,omitempty"`                                                                           // 点击记录ID
	TrackingReference   string          `gorm:"type:varchar(255);not null" json:"tracking_reference"`                                               // 合作方回传的跟踪标识
	ExternalReferenceID *string         `gorm:"type:varchar(128);uniqueIndex:idx_conversions_partner_external,priority:2" json:"external_reference_id"` // 合作方交易号（去重键）
	EventType           string          `gorm:"type:varchar(16);not null;index" json:"event_type"`                                                  // REGISTER / DEPOSIT / QUALIFIED
	Status              string          `gorm:"type:varchar(16);not null;index" json:"status"`                                                      // PENDING / APPROVED / REJECTED
	Source              string          `gorm:"type:varchar(16);not null" json:"source"`                                                            // postback / batch
	GrossAmount         *int64          `json:"gross_amount"`                                                                                       // 合作方上报金额（最小货币单位）
	Currency            string          `gorm:"type:varchar(8);not null" json:"currency"`                                                           // 币种
	OccurredAt          time.Time       `gorm:"not null;index" json:"occurred_at"`                                                                  // 发生时间
	RejectionReason     string          `gorm:"type:varchar(512)" json:"rejection_reason,omitempty"`                                                // 拒绝原因
	BuyerEmail          string          `gorm:"type:varchar(255)" json:"buyer_email,omitempty"`                                                     // 用户邮箱
	BuyerPhone          string          `gorm:"type:varchar(64)" json:"buyer_phone,omitempty"`                                                      // 用户电话
	CommissionAmount    int64           `gorm:"not null;default:0" json:"commission_amount"`                                                        // 佣金总额
	GatewayFee          int64           `gorm:"not null;default:0" json:"gateway_fee"`                                                              // 网关手续费
	PlatformFeePercent  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"platform_fee_percent"`                                  // 平台费率
	PlatformFee         int64           `gorm:"not null;default:0" json:"platform_fee"`                                                             // 平台服务费
	NetAmount           int64           `gorm:"not null;default:0" json:"net_amount"`                                                               // 净佣金
	CommissionTier      string          `gorm:"type:varchar(16)" json:"commission_tier,omitempty"`                                                  // 佣金档位
	ApprovedAt          *time.Time      `gorm:"index" json:"approved_at,omitempty"`                                                                 // 审核通过时间
	ApprovedBy          string          `gorm:"type:varchar(64)" json:"approved_by,omitempty"`                                                      // 审核人
	RejectedAt          *time.Time      `json:"rejected_at,omitempty"`                                                                              // 拒绝时间
	RejectedBy          string          `gorm:"type:varchar(64)" json:"rejected_by,omitempty"`                                                      // 拒绝人
	SourceBatchID       *uint           `gorm:"index" json:"source_batch_id,omitempty"`                                                             // 对账批次ID
	CreatedAt           time.Time       `gorm:"index" json:"created_at"`                                                                            // 创建时间
	UpdatedAt           time.Time       `json:"updated_at"`                                                                                         // 更新时间

	PartnerSite *PartnerSite `gorm:"foreignKey:PartnerSiteID" json:"partner_site,omitempty"` // 合作站点
}

// TableName 指定表名
func (Conversion) TableName() string {
	return "conversions"
}
