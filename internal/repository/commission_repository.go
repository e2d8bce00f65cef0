package repository

import (
	"errors"
	"strings"

	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// CommissionRepository 佣金配置与变更审计数据访问接口
type CommissionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) CommissionRepository

	GetConfig(promoterID string) (*models.CommissionConfig, error)
	CreateConfigIfAbsent(cfg *models.CommissionConfig) (*models.CommissionConfig, error)
	UpdateConfig(cfg *models.CommissionConfig) error
	CreateChangeRecord(record *models.CommissionChangeRecord) error
	ListChangeRecords(filter CommissionHistoryFilter) ([]models.CommissionChangeRecord, int64, error)
}

// GormCommissionRepository GORM 佣金配置仓储
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金配置仓储
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetConfig 获取推广者佣金配置
func (r *GormCommissionRepository) GetConfig(promoterID string) (*models.CommissionConfig, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return nil, nil
	}
	var cfg models.CommissionConfig
	if err := r.db.Where("promoter_id = ?", promoterID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateConfigIfAbsent 创建默认配置；并发创建冲突时返回已存在的配置
func (r *GormCommissionRepository) CreateConfigIfAbsent(cfg *models.CommissionConfig) (*models.CommissionConfig, error) {
	if cfg == nil {
		return nil, errors.New("commission config is nil")
	}
	err := r.db.Create(cfg).Error
	if err == nil {
		return cfg, nil
	}
	if !IsUniqueViolation(err) {
		return nil, err
	}
	existing, findErr := r.GetConfig(cfg.PromoterID)
	if findErr != nil {
		return nil, findErr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

// UpdateConfig 保存佣金配置
func (r *GormCommissionRepository) UpdateConfig(cfg *models.CommissionConfig) error {
	return r.db.Save(cfg).Error
}

// CreateChangeRecord 追加变更审计记录
func (r *GormCommissionRepository) CreateChangeRecord(record *models.CommissionChangeRecord) error {
	return r.db.Create(record).Error
}

// ListChangeRecords 分页查询变更历史（新记录在前）
func (r *GormCommissionRepository) ListChangeRecords(filter CommissionHistoryFilter) ([]models.CommissionChangeRecord, int64, error) {
	query := r.db.Model(&models.CommissionChangeRecord{})
	if promoterID := strings.TrimSpace(filter.PromoterID); promoterID != "" {
		query = query.Where("promoter_id = ?", promoterID)
	}
	var records []models.CommissionChangeRecord
	total, err := countAndFind(query, filter.Page, filter.PageSize, "created_at DESC, id DESC", &records)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
