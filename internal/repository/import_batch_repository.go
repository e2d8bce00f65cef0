package repository

import (
	"errors"
	"strings"

	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// ImportBatchRepository 对账导入批次数据访问接口
type ImportBatchRepository interface {
	GetByID(id uint) (*models.ImportBatch, error)
	Create(batch *models.ImportBatch) error
	Update(batch *models.ImportBatch) error
	List(filter ImportBatchListFilter) ([]models.ImportBatch, int64, error)
}

// GormImportBatchRepository GORM 导入批次仓储
type GormImportBatchRepository struct {
	db *gorm.DB
}

// NewImportBatchRepository 创建导入批次仓储
func NewImportBatchRepository(db *gorm.DB) *GormImportBatchRepository {
	return &GormImportBatchRepository{db: db}
}

// GetByID 按ID获取导入批次
func (r *GormImportBatchRepository) GetByID(id uint) (*models.ImportBatch, error) {
	if id == 0 {
		return nil, nil
	}
	var batch models.ImportBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// Create 创建导入批次
func (r *GormImportBatchRepository) Create(batch *models.ImportBatch) error {
	return r.db.Create(batch).Error
}

// Update 保存导入批次
func (r *GormImportBatchRepository) Update(batch *models.ImportBatch) error {
	return r.db.Save(batch).Error
}

// List 分页查询导入批次
func (r *GormImportBatchRepository) List(filter ImportBatchListFilter) ([]models.ImportBatch, int64, error) {
	query := r.db.Model(&models.ImportBatch{})
	if filter.PartnerSiteID != 0 {
		query = query.Where("partner_site_id = ?", filter.PartnerSiteID)
	}
	if period := strings.TrimSpace(filter.Period); period != "" {
		query = query.Where("period = ?", period)
	}
	var batches []models.ImportBatch
	total, err := countAndFind(query, filter.Page, filter.PageSize, "id DESC", &batches)
	if err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}
