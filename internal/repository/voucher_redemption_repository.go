package repository

import (
	"github.com/chatmeter-next/internal/models"

	"gorm.io/gorm"
)

// VoucherRedemptionRepository 代金券核销记录数据访问接口
type VoucherRedemptionRepository interface {
	Create(redemption *models.VoucherRedemption) error
	CountByUser(voucherID, userID uint) (int64, error)
	ListByUser(filter VoucherRedemptionListFilter) ([]models.VoucherRedemption, int64, error)
	WithTx(tx *gorm.DB) *GormVoucherRedemptionRepository
}

// GormVoucherRedemptionRepository GORM 实现
type GormVoucherRedemptionRepository struct {
	db *gorm.DB
}

// NewVoucherRedemptionRepository 创建核销记录仓库
func NewVoucherRedemptionRepository(db *gorm.DB) *GormVoucherRedemptionRepository {
	return &GormVoucherRedemptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRedemptionRepository) WithTx(tx *gorm.DB) *GormVoucherRedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRedemptionRepository{db: tx}
}

// Create 创建核销记录（唯一索引冲突由调用方识别处理）
func (r *GormVoucherRedemptionRepository) Create(redemption *models.VoucherRedemption) error {
	return r.db.Create(redemption).Error
}

// CountByUser 获取用户对某代金券的核销次数
func (r *GormVoucherRedemptionRepository) CountByUser(voucherID, userID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VoucherRedemption{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByUser 获取用户核销记录
func (r *GormVoucherRedemptionRepository) ListByUser(filter VoucherRedemptionListFilter) ([]models.VoucherRedemption, int64, error) {
	query := r.db.Model(&models.VoucherRedemption{}).Where("user_id = ?", filter.UserID)
	if filter.VoucherID > 0 {
		query = query.Where("voucher_id = ?", filter.VoucherID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var redemptions []models.VoucherRedemption
	if err := query.Order("id desc").Find(&redemptions).Error; err != nil {
		return nil, 0, err
	}
	return redemptions, total, nil
}
