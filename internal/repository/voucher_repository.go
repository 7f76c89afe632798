package repository

import (
	"errors"
	"strings"

	"github.com/chatmeter-next/internal/models"

	"gorm.io/gorm"
)

// VoucherRepository 代金券数据访问接口
type VoucherRepository interface {
	GetByID(id uint) (*models.Voucher, error)
	GetByCode(code string) (*models.Voucher, error)
	Create(voucher *models.Voucher) error
	Update(voucher *models.Voucher) error
	IncrementUsesCount(id uint) (bool, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormVoucherRepository
}

// NormalizeCode 统一券码格式（去空白并大写）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GormVoucherRepository GORM 实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建代金券仓库
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) *GormVoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// Transaction 开启事务
func (r *GormVoucherRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GetByID 根据ID获取代金券
func (r *GormVoucherRepository) GetByID(id uint) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.First(&voucher, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// GetByCode 根据券码获取代金券
func (r *GormVoucherRepository) GetByCode(code string) (*models.Voucher, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}
	var voucher models.Voucher
	if err := r.db.Where("code = ?", normalized).First(&voucher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// Create 创建代金券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	if voucher != nil {
		voucher.Code = NormalizeCode(voucher.Code)
	}
	return r.db.Create(voucher).Error
}

// Update 更新代金券
func (r *GormVoucherRepository) Update(voucher *models.Voucher) error {
	return r.db.Save(voucher).Error
}

// IncrementUsesCount 条件递增使用次数
//
// 带上限保护的单条 UPDATE：uses_count 达到 max_uses 时不产生任何写入，
// 返回 false 表示代金券已耗尽（并发核销者之间的先到先得由此保证）。
func (r *GormVoucherRepository) IncrementUsesCount(id uint) (bool, error) {
	result := r.db.Model(&models.Voucher{}).
		Where("id = ?", id).
		Where("max_uses = 0 OR uses_count < max_uses").
		UpdateColumn("uses_count", gorm.Expr("uses_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
