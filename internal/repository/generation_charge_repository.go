package repository

import (
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GenerationChargeRepository 生成计费单数据访问接口
type GenerationChargeRepository interface {
	Create(charge *models.GenerationCharge) error
	GetByReservationNo(reservationNo string) (*models.GenerationCharge, error)
	GetByReservationNoForUpdate(reservationNo string) (*models.GenerationCharge, error)
	Update(charge *models.GenerationCharge) error
	ListStuckDebited(before time.Time) ([]models.GenerationCharge, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormGenerationChargeRepository
}

// GormGenerationChargeRepository GORM 实现
type GormGenerationChargeRepository struct {
	db *gorm.DB
}

// NewGenerationChargeRepository 创建计费单仓库
func NewGenerationChargeRepository(db *gorm.DB) *GormGenerationChargeRepository {
	return &GormGenerationChargeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormGenerationChargeRepository) WithTx(tx *gorm.DB) *GormGenerationChargeRepository {
	if tx == nil {
		return r
	}
	return &GormGenerationChargeRepository{db: tx}
}

// Transaction 在事务中执行
func (r *GormGenerationChargeRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// Create 创建计费单
func (r *GormGenerationChargeRepository) Create(charge *models.GenerationCharge) error {
	return r.db.Create(charge).Error
}

// GetByReservationNo 按预留号获取计费单
func (r *GormGenerationChargeRepository) GetByReservationNo(reservationNo string) (*models.GenerationCharge, error) {
	var charge models.GenerationCharge
	if err := r.db.Where("reservation_no = ?", reservationNo).First(&charge).Error; err != nil {
		return nil, err
	}
	return &charge, nil
}

// GetByReservationNoForUpdate 行锁获取计费单（需在事务内调用）
func (r *GormGenerationChargeRepository) GetByReservationNoForUpdate(reservationNo string) (*models.GenerationCharge, error) {
	var charge models.GenerationCharge
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_no = ?", reservationNo).First(&charge).Error; err != nil {
		return nil, err
	}
	return &charge, nil
}

// Update 更新计费单
func (r *GormGenerationChargeRepository) Update(charge *models.GenerationCharge) error {
	return r.db.Save(charge).Error
}

// ListStuckDebited 获取超时未结算的已扣费单据
func (r *GormGenerationChargeRepository) ListStuckDebited(before time.Time) ([]models.GenerationCharge, error) {
	var charges []models.GenerationCharge
	if err := r.db.Where("status = ? AND debited_at < ?", constants.ChargeStatusDebited, before).
		Order("id asc").Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}
