package repository

import (
	"errors"
	"strings"

	"github.com/tipster-link/internal/models"

	"gorm.io/gorm"
)

// PayoutRepository 结算单数据访问接口
type PayoutRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PayoutRepository

	GetByID(id uint) (*models.Payout, error)
	FindByPeriodAndPromoter(period, promoterID string) (*models.Payout, error)
	Create(payout *models.Payout) error
	MarkPaid(id uint, fromStatus string, updates map[string]interface{}) (bool, error)
	List(filter PayoutListFilter) ([]models.Payout, int64, error)
}

// GormPayoutRepository GORM 结算单仓储
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建结算单仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPayoutRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取结算单
func (r *GormPayoutRepository) GetByID(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// FindByPeriodAndPromoter 按周期与推广者获取结算单
func (r *GormPayoutRepository) FindByPeriodAndPromoter(period, promoterID string) (*models.Payout, error) {
	period = strings.TrimSpace(period)
	promoterID = strings.TrimSpace(promoterID)
	if period == "" || promoterID == "" {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.Where("period = ? AND promoter_id = ?", period, promoterID).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// Create 创建结算单，唯一约束冲突原样返回
func (r *GormPayoutRepository) Create(payout *models.Payout) error {
	return r.db.Create(payout).Error
}

// MarkPaid 条件更新为已付款：仅当当前状态为 fromStatus 时生效
func (r *GormPayoutRepository) MarkPaid(id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	if id == 0 || len(updates) == 0 {
		return false, nil
	}
	result := r.db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List 分页查询结算单
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.Payout, int64, error) {
	query := r.db.Model(&models.Payout{})
	if promoterID := strings.TrimSpace(filter.PromoterID); promoterID != "" {
		query = query.Where("promoter_id = ?", promoterID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if period := strings.TrimSpace(filter.Period); period != "" {
		query = query.Where("period = ?", period)
	}
	var payouts []models.Payout
	total, err := countAndFind(query, filter.Page, filter.PageSize, "period DESC, id DESC", &payouts)
	if err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}
