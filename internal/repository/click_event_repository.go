package repository

import (
	"errors"

	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// ClickEventRepository 点击记录数据访问接口（只追加）
type ClickEventRepository interface {
	WithTx(tx *gorm.DB) ClickEventRepository
	Create(event *models.ClickEvent) error
	GetByID(id uint) (*models.ClickEvent, error)
	CountByLink(linkID uint, blocked bool) (int64, error)
}

// GormClickEventRepository GORM 点击记录仓储
type GormClickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository 创建点击记录仓储
func NewClickEventRepository(db *gorm.DB) *GormClickEventRepository {
	return &GormClickEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormClickEventRepository) WithTx(tx *gorm.DB) ClickEventRepository {
	if tx == nil {
		return r
	}
	return &GormClickEventRepository{db: tx}
}

// Create 写入点击记录
func (r *GormClickEventRepository) Create(event *models.ClickEvent) error {
	return r.db.Create(event).Error
}

// GetByID 按ID获取点击记录
func (r *GormClickEventRepository) GetByID(id uint) (*models.ClickEvent, error) {
	if id == 0 {
		return nil, nil
	}
	var event models.ClickEvent
	if err := r.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// CountByLink 统计链接的点击数
func (r *GormClickEventRepository) CountByLink(linkID uint, blocked bool) (int64, error) {
	if linkID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.ClickEvent{}).
		Where("link_id = ? AND was_blocked = ?", linkID, blocked).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
