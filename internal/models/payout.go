package models

import "time"

// Payout 推广者月度结算单，(promoter_id, period) 唯一
type Payout struct {
	ID               uint                 `gorm:"primarykey" json:"id"`                                                                    // 主键
	PromoterID       string               `gorm:"type:varchar(64);not null;uniqueIndex:idx_payouts_promoter_period,priority:1" json:"promoter_id"` // 推广者ID
	Period           string               `gorm:"type:varchar(7);not null;index;uniqueIndex:idx_payouts_promoter_period,priority:2" json:"period"` // 结算周期 YYYY-MM
	HouseBreakdown   PayoutHouseBreakdown `gorm:"type:json" json:"house_breakdown"`                                                        // 按站点拆分
	TotalConversions int64                `gorm:"not null;default:0" json:"total_conversions"`                                             // 转化总数
	TotalAmount      int64                `gorm:"not null;default:0" json:"total_amount"`                                                  // 结算总额（最小货币单位）
	Currency         string               `gorm:"type:varchar(8);not null" json:"currency"`                                                // 币种
	Status           string               `gorm:"type:varchar(16);not null;index" json:"status"`                                           // PENDING / PAID
	PaymentMethod    string               `gorm:"type:varchar(64)" json:"payment_method,omitempty"`                                        // 付款方式
	PaymentReference string               `gorm:"type:varchar(255)" json:"payment_reference,omitempty"`                                    // 付款流水号
	Notes            string               `gorm:"type:text" json:"notes,omitempty"`                                                        // 备注
	PaidAt           *time.Time           `json:"paid_at,omitempty"`                                                                       // 付款时间
	PaidBy           string               `gorm:"type:varchar(64)" json:"paid_by,omitempty"`                                               // 付款操作人
	CreatedAt        time.Time            `gorm:"index" json:"created_at"`                                                                 // 创建时间
	UpdatedAt        time.Time            `json:"updated_at"`                                                                              // 更新时间
}

// TableName 指定表名
func (Payout) TableName() string {
	return "payouts"
}
