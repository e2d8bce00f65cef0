package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// 允许原子自增的计数列
const (
	LinkCounterClicks      = "total_clicks"
	LinkCounterConversions = "total_conversions"
)

// AttributionLinkRepository 归因链接数据访问接口
type AttributionLinkRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AttributionLinkRepository

	GetByID(id uint) (*models.AttributionLink, error)
	FindByToken(token string) (*models.AttributionLink, error)
	FindByPair(promoterID string, partnerSiteID uint) (*models.AttributionLink, error)
	UpsertIfAbsent(link *models.AttributionLink) (*models.AttributionLink, bool, error)
	AtomicIncrement(id uint, column string, delta int64) error
	MatchTrackingID(partnerSiteID uint, trackingID string) (*models.AttributionLink, error)
	ListByPromoter(promoterID string) ([]models.AttributionLink, error)
	List(filter AttributionLinkListFilter) ([]models.AttributionLink, int64, error)
}

// GormAttributionLinkRepository GORM 归因链接仓储
type GormAttributionLinkRepository struct {
	db *gorm.DB
}

// NewAttributionLinkRepository 创建归因链接仓储
func NewAttributionLinkRepository(db *gorm.DB) *GormAttributionLinkRepository {
	return &GormAttributionLinkRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAttributionLinkRepository) WithTx(tx *gorm.DB) AttributionLinkRepository {
	if tx == nil {
		return r
	}
	return &GormAttributionLinkRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAttributionLinkRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取归因链接
func (r *GormAttributionLinkRepository) GetByID(id uint) (*models.AttributionLink, error) {
	if id == 0 {
		return nil, nil
	}
	var link models.AttributionLink
	if err := r.db.Preload("PartnerSite").First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// FindByToken 按跳转令牌获取归因链接（含合作站点）
func (r *GormAttributionLinkRepository) FindByToken(token string) (*models.AttributionLink, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return nil, nil
	}
	var link models.AttributionLink
	if err := r.db.Preload("PartnerSite").Where("redirect_token = ?", normalized).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// FindByPair 按推广者与合作站点获取归因链接
func (r *GormAttributionLinkRepository) FindByPair(promoterID string, partnerSiteID uint) (*models.AttributionLink, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" || partnerSiteID == 0 {
		return nil, nil
	}
	var link models.AttributionLink
	if err := r.db.Where("promoter_id = ? AND partner_site_id = ?", promoterID, partnerSiteID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// UpsertIfAbsent 插入归因链接；若 (推广者, 站点) 已存在则返回已有记录，created 为 false。
// 令牌冲突（同对链接不存在）时返回唯一约束错误，由调用方换令牌重试。
func (r *GormAttributionLinkRepository) UpsertIfAbsent(link *models.AttributionLink) (*models.AttributionLink, bool, error) {
	if link == nil {
		return nil, false, errors.New("link is nil")
	}
	err := r.db.Create(link).Error
	if err == nil {
		return link, true, nil
	}
	if !IsUniqueViolation(err) {
		return nil, false, err
	}
	existing, findErr := r.FindByPair(link.PromoterID, link.PartnerSiteID)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing != nil {
		return existing, false, nil
	}
	return nil, false, err
}

// AtomicIncrement 在存储层原子自增计数列
func (r *GormAttributionLinkRepository) AtomicIncrement(id uint, column string, delta int64) error {
	if id == 0 || delta == 0 {
		return nil
	}
	if column != LinkCounterClicks && column != LinkCounterConversions {
		return fmt.Errorf("unsupported link counter: %s", column)
	}
	return r.db.Model(&models.AttributionLink{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

// MatchTrackingID 在站点的链接中按推广者ID精确匹配，失败再按令牌包含匹配
func (r *GormAttributionLinkRepository) MatchTrackingID(partnerSiteID uint, trackingID string) (*models.AttributionLink, error) {
	trackingID = strings.TrimSpace(trackingID)
	if partnerSiteID == 0 || trackingID == "" {
		return nil, nil
	}
	link, err := r.FindByPair(trackingID, partnerSiteID)
	if err != nil || link != nil {
		return link, err
	}

	cond, arg := containsCondition(r.db, "redirect_token", strings.ToLower(trackingID))
	var matched models.AttributionLink
	if err := r.db.Where("partner_site_id = ?", partnerSiteID).
		Where(cond, arg).
		Order("id ASC").
		First(&matched).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &matched, nil
}

// ListByPromoter 查询推广者的全部链接（含合作站点）
func (r *GormAttributionLinkRepository) ListByPromoter(promoterID string) ([]models.AttributionLink, error) {
	promoterID = strings.TrimSpace(promoterID)
	if promoterID == "" {
		return nil, nil
	}
	var links []models.AttributionLink
	if err := r.db.Preload("PartnerSite").Where("promoter_id = ?", promoterID).Order("id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// List 分页查询归因链接
func (r *GormAttributionLinkRepository) List(filter AttributionLinkListFilter) ([]models.AttributionLink, int64, error) {
	query := r.db.Model(&models.AttributionLink{})
	if promoterID := strings.TrimSpace(filter.PromoterID); promoterID != "" {
		query = query.Where("promoter_id = ?", promoterID)
	}
	if filter.PartnerSiteID != 0 {
		query = query.Where("partner_site_id = ?", filter.PartnerSiteID)
	}
	var links []models.AttributionLink
	total, err := countAndFind(query.Preload("PartnerSite"), filter.Page, filter.PageSize, "id DESC", &links)
	if err != nil {
		return nil, 0, err
	}
	return links, total, nil
}
