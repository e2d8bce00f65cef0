package repository

import "time"

// PartnerSiteListFilter 查询合作站点列表的过滤条件
type PartnerSiteListFilter struct {
	Page     int
	PageSize int
	Status   string
	Search   string
}

// AttributionLinkListFilter 查询归因链接列表的过滤条件
type AttributionLinkListFilter struct {
	Page          int
	PageSize      int
	PromoterID    string
	PartnerSiteID uint
}

// ConversionListFilter 查询转化列表的过滤条件
type ConversionListFilter struct {
	Page          int
	PageSize      int
	PartnerSiteID uint
	PromoterID    string
	Status        string
	EventType     string
	SourceBatchID uint
	OccurredFrom  *time.Time
	OccurredTo    *time.Time
}

// PayoutListFilter 查询结算单列表的过滤条件
type PayoutListFilter struct {
	Page       int
	PageSize   int
	PromoterID string
	Status     string
	Period     string
}

// ImportBatchListFilter 查询导入批次列表的过滤条件
type ImportBatchListFilter struct {
	Page          int
	PageSize      int
	PartnerSiteID uint
	Period        string
}

// CommissionHistoryFilter 查询佣金配置变更历史的过滤条件
type CommissionHistoryFilter struct {
	Page       int
	PageSize   int
	PromoterID string
}

// PromoterPartnerAggregate 按推广者与合作站点聚合的已审核转化
type PromoterPartnerAggregate struct {
	PromoterID      string `gorm:"column:promoter_id"`
	PartnerSiteID   uint   `gorm:"column:partner_site_id"`
	ConversionCount int64  `gorm:"column:conversion_count"`
	Amount          int64  `gorm:"column:amount"`
}
