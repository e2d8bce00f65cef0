package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// ConversionRepository 转化数据访问接口
type ConversionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ConversionRepository

	GetByID(id uint) (*models.Conversion, error)
	FindByExternalRef(partnerSiteID uint, externalRef string) (*models.Conversion, error)
	Create(conversion *models.Conversion) error
	TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error)
	List(filter ConversionListFilter) ([]models.Conversion, int64, error)
	SumApprovedCommission(promoterID string, from, to time.Time) (int64, error)
	AggregateApprovedByPromoter(from, to time.Time) ([]PromoterPartnerAggregate, error)
}

// GormConversionRepository GORM 转化仓储
type GormConversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository 创建转化仓储
func NewConversionRepository(db *gorm.DB) *GormConversionRepository {
	return &GormConversionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormConversionRepository) WithTx(tx *gorm.DB) ConversionRepository {
	if tx == nil {
		return r
	}
	return &GormConversionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormConversionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取转化
func (r *GormConversionRepository) GetByID(id uint) (*models.Conversion, error) {
	if id == 0 {
		return nil, nil
	}
	var conversion models.Conversion
	if err := r.db.First(&conversion, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

// FindByExternalRef 按 (站点, 合作方交易号) 查找转化
func (r *GormConversionRepository) FindByExternalRef(partnerSiteID uint, externalRef string) (*models.Conversion, error) {
	externalRef = strings.TrimSpace(externalRef)
	if partnerSiteID == 0 || externalRef == "" {
		return nil, nil
	}
	var conversion models.Conversion
	if err := r.db.Where("partner_site_id = ? AND external_reference_id = ?", partnerSiteID, externalRef).
		First(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

// Create 创建转化，唯一约束冲突原样返回
func (r *GormConversionRepository) Create(conversion *models.Conversion) error {
	return r.db.Create(conversion).Error
}

// TransitionStatus 条件更新状态：仅当当前状态为 fromStatus 时生效
func (r *GormConversionRepository) TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	if id == 0 || len(updates) == 0 {
		return false, nil
	}
	result := r.db.Model(&models.Conversion{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List 分页查询转化
func (r *GormConversionRepository) List(filter ConversionListFilter) ([]models.Conversion, int64, error) {
	query := r.db.Model(&models.Conversion{})
	if filter.PartnerSiteID != 0 {
		query = query.Where("partner_site_id = ?", filter.PartnerSiteID)
	}
	if promoterID := strings.TrimSpace(filter.PromoterID); promoterID != "" {
		query = query.Where("promoter_id = ?", promoterID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		query = query.Where("event_type = ?", strings.ToUpper(eventType))
	}
	if filter.SourceBatchID != 0 {
		query = query.Where("source_batch_id = ?", filter.SourceBatchID)
	}
	if filter.OccurredFrom != nil {
		query = query.Where("occurred_at >= ?", filter.OccurredFrom.UTC())
	}
	if filter.OccurredTo != nil {
		query = query.Where("occurred_at < ?", filter.OccurredTo.UTC())
	}
	var conversions []models.Conversion
	total, err := countAndFind(query, filter.Page, filter.PageSize, "occurred_at DESC, id DESC", &conversions)
	if err != nil {
		return nil, 0, err
	}
	return conversions, total, nil
}

// SumApprovedCommission 统计推广者在区间内已审核转化的佣金总额
func (r *GormConversionRepository) SumApprovedCommission(promoterID string, from, to time.Time) (int64, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.Conversion{}).
		Select("COALESCE(SUM(commission_amount), 0)").
		Where("promoter_id = ? AND status = ?", promoterID, constants.ConversionStatusApproved).
		Where("occurred_at >= ? AND occurred_at < ?", from.UTC(), to.UTC()).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// AggregateApprovedByPromoter 按推广者与站点聚合区间内已审核且已归因的转化
func (r *GormConversionRepository) AggregateApprovedByPromoter(from, to time.Time) ([]PromoterPartnerAggregate, error) {
	var rows []PromoterPartnerAggregate
	if err := r.db.Model(&models.Conversion{}).
		Select("promoter_id, partner_site_id, COUNT(*) AS conversion_count, COALESCE(SUM(net_amount), 0) AS amount").
		Where("status = ? AND promoter_id IS NOT NULL AND promoter_id <> ''", constants.ConversionStatusApproved).
		Where("occurred_at >= ? AND occurred_at < ?", from.UTC(), to.UTC()).
		Group("promoter_id, partner_site_id").
		Order("promoter_id ASC, partner_site_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
