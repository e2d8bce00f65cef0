package repository

import (
	"errors"
	"strings"

	"github.com/tipster-link/internal/constants"
	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// PartnerSiteRepository 合作站点数据访问接口
type PartnerSiteRepository interface {
	GetByID(id uint) (*models.PartnerSite, error)
	GetBySlug(slug string) (*models.PartnerSite, error)
	Create(site *models.PartnerSite) error
	Update(site *models.PartnerSite) error
	List(filter PartnerSiteListFilter) ([]models.PartnerSite, int64, error)
	ListActive() ([]models.PartnerSite, error)
}

// GormPartnerSiteRepository GORM 合作站点仓储
type GormPartnerSiteRepository struct {
	db *gorm.DB
}

// NewPartnerSiteRepository 创建合作站点仓储
func NewPartnerSiteRepository(db *gorm.DB) *GormPartnerSiteRepository {
	return &GormPartnerSiteRepository{db: db}
}

// GetByID 按ID获取合作站点
func (r *GormPartnerSiteRepository) GetByID(id uint) (*models.PartnerSite, error) {
	if id == 0 {
		return nil, nil
	}
	var site models.PartnerSite
	if err := r.db.First(&site, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &site, nil
}

// GetBySlug 按 slug 获取合作站点
func (r *GormPartnerSiteRepository) GetBySlug(slug string) (*models.PartnerSite, error) {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if normalized == "" {
		return nil, nil
	}
	var site models.PartnerSite
	if err := r.db.Where("slug = ?", normalized).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &site, nil
}

// Create 创建合作站点
func (r *GormPartnerSiteRepository) Create(site *models.PartnerSite) error {
	return r.db.Create(site).Error
}

// Update 更新合作站点
func (r *GormPartnerSiteRepository) Update(site *models.PartnerSite) error {
	return r.db.Save(site).Error
}

// List 分页查询合作站点
func (r *GormPartnerSiteRepository) List(filter PartnerSiteListFilter) ([]models.PartnerSite, int64, error) {
	query := r.db.Model(&models.PartnerSite{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		slugCond, slugArg := containsCondition(r.db, "slug", search)
		nameCond, nameArg := containsCondition(r.db, "name", search)
		query = query.Where("("+slugCond+" OR "+nameCond+")", slugArg, nameArg)
	}
	var sites []models.PartnerSite
	total, err := countAndFind(query, filter.Page, filter.PageSize, "id ASC", &sites)
	if err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

// ListActive 查询全部启用的合作站点
func (r *GormPartnerSiteRepository) ListActive() ([]models.PartnerSite, error) {
	var sites []models.PartnerSite
	if err := r.db.Where("status = ?", constants.PartnerSiteStatusActive).Order("id ASC").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}
