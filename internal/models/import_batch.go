package models

import "time"

// ImportBatch 对账文件导入批次
type ImportBatch struct {
	ID             uint            `gorm:"primarykey" json:"id"`                          // 主键
	PartnerSiteID  uint            `gorm:"not null;index" json:"partner_site_id"`         // 合作站点ID
	Period         string          `gorm:"type:varchar(7);not null;index" json:"period"`  // 对账周期 YYYY-MM
	FileName       string          `gorm:"type:varchar(255)" json:"file_name"`            // 文件名
	TotalRows      int             `gorm:"not null;default:0" json:"total_rows"`          // 总行数
	ProcessedRows  int             `gorm:"not null;default:0" json:"processed_rows"`      // 成功行数
	ErrorRows      int             `gorm:"not null;default:0" json:"error_rows"`          // 失败行数
	DuplicateRows  int             `gorm:"not null;default:0" json:"duplicate_rows"`      // 重复行数（计入成功）
	UnresolvedRows int             `gorm:"not null;default:0" json:"unresolved_rows"`     // 未归因行数（计入成功，以待审核入库）
	Errors         ImportRowErrors `gorm:"type:json" json:"errors"`                       // 行错误明细
	Status         string          `gorm:"type:varchar(16);not null;index" json:"status"` // PROCESSING / COMPLETED / FAILED
	ImportedBy     string          `gorm:"type:varchar(64)" json:"imported_by"`           // 导入人
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`                        // 完成时间
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt      time.Time       `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (ImportBatch) TableName() string {
	return "import_batches"
}
