package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionConfig 推广者佣金配置（首次计算时按系统默认值创建）
type CommissionConfig struct {
	ID                 uint                `gorm:"primarykey" json:"id"`                                         // 主键
	PromoterID         string              `gorm:"type:varchar(64);not null;uniqueIndex" json:"promoter_id"`     // 推广者ID
	StandardFeePercent decimal.Decimal     `gorm:"type:decimal(5,2);not null" json:"standard_fee_percent"`       // 标准平台费率
	CustomFeePercent   decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"custom_fee_percent"`                  // 自定义费率
	UseCustomFee       bool                `gorm:"not null" json:"use_custom_fee"`                               // 是否启用自定义费率
	AutoTierEnabled    bool                `gorm:"not null" json:"auto_tier_enabled"`                            // 是否启用自动档位
	UpdatedBy          string              `gorm:"type:varchar(64)" json:"updated_by,omitempty"`                 // 最近修改人
	CreatedAt          time.Time           `json:"created_at"`                                                   // 创建时间
	UpdatedAt          time.Time           `json:"updated_at"`                                                   // 更新时间
}

// TableName 指定表名
func (CommissionConfig) TableName() string {
	return "commission_configs"
}

// CommissionChangeRecord 佣金配置变更审计记录（不可变）
type CommissionChangeRecord struct {
	ID                uint            `gorm:"primarykey" json:"id"`                                     // 主键
	PromoterID        string          `gorm:"type:varchar(64);not null;index" json:"promoter_id"`       // 推广者ID
	ChangeType        string          `gorm:"type:varchar(32);not null" json:"change_type"`             // MANUAL_OVERRIDE / RESET_TO_DEFAULT
	PreviousPercent   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"previous_percent"`       // 变更前生效费率
	NewPercent        decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"new_percent"`            // 变更后生效费率
	PreviousUseCustom bool            `gorm:"not null" json:"previous_use_custom"`                      // 变更前是否自定义
	NewUseCustom      bool            `gorm:"not null" json:"new_use_custom"`                           // 变更后是否自定义
	Reason            string          `gorm:"type:varchar(512);not null" json:"reason"`                 // 变更原因
	Actor             string          `gorm:"type:varchar(64);not null" json:"actor"`                   // 操作人
	MonthlyVolume     int64           `gorm:"not null;default:0" json:"monthly_volume"`                 // 变更时当月业绩
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`                                  // 创建时间
}

// TableName 指定表名
func (CommissionChangeRecord) TableName() string {
	return "commission_change_records"
}
