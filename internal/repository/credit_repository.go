package repository

import (
	"github.com/chatmeter-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditRepository 积分账户与流水数据访问接口
type CreditRepository interface {
	GetAccountByUserID(userID uint) (*models.CreditAccount, error)
	GetAccountByUserIDForUpdate(userID uint) (*models.CreditAccount, error)
	CreateAccount(account *models.CreditAccount) error
	UpdateAccount(account *models.CreditAccount) error
	CreateTransaction(txn *models.CreditTransaction) error
	GetTransactionByReference(reference string) (*models.CreditTransaction, error)
	ListTransactions(filter CreditTransactionListFilter) ([]models.CreditTransaction, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormCreditRepository
}

// GormCreditRepository GORM 实现
type GormCreditRepository struct {
	db *gorm.DB
}

// NewCreditRepository 创建积分仓库
func NewCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCreditRepository) WithTx(tx *gorm.DB) *GormCreditRepository {
	if tx == nil {
		return r
	}
	return &GormCreditRepository{db: tx}
}

// Transaction 在事务中执行
func (r *GormCreditRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GetAccountByUserID 获取用户积分账户
func (r *GormCreditRepository) GetAccountByUserID(userID uint) (*models.CreditAccount, error) {
	var account models.CreditAccount
	if err := r.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByUserIDForUpdate 行锁获取账户（需在事务内调用）
func (r *GormCreditRepository) GetAccountByUserIDForUpdate(userID uint) (*models.CreditAccount, error) {
	var account models.CreditAccount
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount 创建积分账户
func (r *GormCreditRepository) CreateAccount(account *models.CreditAccount) error {
	return r.db.Create(account).Error
}

// UpdateAccount 更新积分账户
func (r *GormCreditRepository) UpdateAccount(account *models.CreditAccount) error {
	return r.db.Save(account).Error
}

// CreateTransaction 创建积分流水
func (r *GormCreditRepository) CreateTransaction(txn *models.CreditTransaction) error {
	return r.db.Create(txn).Error
}

// GetTransactionByReference 按业务引用号获取流水（幂等检查）
func (r *GormCreditRepository) GetTransactionByReference(reference string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	if err := r.db.Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListTransactions 获取积分流水列表
func (r *GormCreditRepository) ListTransactions(filter CreditTransactionListFilter) ([]models.CreditTransaction, int64, error) {
	query := r.db.Model(&models.CreditTransaction{}).Where("user_id = ?", filter.UserID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var txns []models.CreditTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
