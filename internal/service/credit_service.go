package service

import (
	"context"
	"errors"
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"

	"gorm.io/gorm"
)

// errReferenceApplied 参考号已有流水，表示本次变动此前已提交
var errReferenceApplied = errors.New("credit reference already applied")

// CreditService 积分账务服务
//
// 扣费是单条原子操作：行锁下校验余额再写入，余额不足时整体失败，
// 不允许出现部分提交。每条变动以唯一参考号防重，重试不会重复记账。
type CreditService struct {
	creditRepo   repository.CreditRepository
	storeTimeout time.Duration
}

// NewCreditService 创建积分账务服务
func NewCreditService(creditRepo repository.CreditRepository, storeTimeout time.Duration) *CreditService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &CreditService{creditRepo: creditRepo, storeTimeout: storeTimeout}
}

// GetAccount 获取用户积分账户（不存在时按零余额创建）
func (s *CreditService) GetAccount(ctx context.Context, userID uint) (*models.CreditAccount, error) {
	account, err := s.creditRepo.GetAccountByUserID(userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrapStoreErr(err)
	}

	account = &models.CreditAccount{UserID: userID}
	if err := s.creditRepo.CreateAccount(account); err != nil {
		if isDuplicateKey(err) {
			account, err = s.creditRepo.GetAccountByUserID(userID)
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			return account, nil
		}
		return nil, wrapStoreErr(err)
	}
	return account, nil
}

// Debit 扣减积分（余额不足返回 ErrInsufficientCredits，不产生任何写入）
func (s *CreditService) Debit(ctx context.Context, userID uint, amount models.Credit, txnType, reference, remark string) (*models.CreditAccount, error) {
	return s.apply(ctx, userID, amount, constants.CreditTxnDirectionOut, txnType, reference, remark)
}

// Credit 增加积分
func (s *CreditService) Credit(ctx context.Context, userID uint, amount models.Credit, txnType, reference, remark string) (*models.CreditAccount, error) {
	return s.apply(ctx, userID, amount, constants.CreditTxnDirectionIn, txnType, reference, remark)
}

// apply 在账务超时窗口内执行一次带参考号防重的余额变动
func (s *CreditService) apply(ctx context.Context, userID uint, amount models.Credit, direction, txnType, reference, remark string) (*models.CreditAccount, error) {
	if !amount.IsPositive() {
		return nil, ErrCreditAmountInvalid
	}
	if reference == "" {
		return nil, ErrCreditAmountInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var account *models.CreditAccount
	err := s.creditRepo.Transaction(func(tx *gorm.DB) error {
		var txErr error
		account, txErr = s.applyInTx(tx.WithContext(ctx), userID, amount, direction, txnType, reference, remark)
		return txErr
	})
	if errors.Is(err, errReferenceApplied) {
		account, err = s.creditRepo.GetAccountByUserID(userID)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		return account, nil
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return account, nil
}

// CreditInTx 在调用方事务内增加积分（供代金券核销、结算等复合事务复用）
func (s *CreditService) CreditInTx(tx *gorm.DB, userID uint, amount models.Credit, txnType, reference, remark string) (*models.CreditAccount, error) {
	if !amount.IsPositive() {
		return nil, ErrCreditAmountInvalid
	}
	account, err := s.applyInTx(tx, userID, amount, constants.CreditTxnDirectionIn, txnType, reference, remark)
	if errors.Is(err, errReferenceApplied) {
		// 参考号已入账，按幂等成功处理
		return s.creditRepo.WithTx(tx).GetAccountByUserID(userID)
	}
	return account, err
}

// DebitInTx 在调用方事务内扣减积分
func (s *CreditService) DebitInTx(tx *gorm.DB, userID uint, amount models.Credit, txnType, reference, remark string) (*models.CreditAccount, error) {
	if !amount.IsPositive() {
		return nil, ErrCreditAmountInvalid
	}
	account, err := s.applyInTx(tx, userID, amount, constants.CreditTxnDirectionOut, txnType, reference, remark)
	if errors.Is(err, errReferenceApplied) {
		return s.creditRepo.WithTx(tx).GetAccountByUserID(userID)
	}
	return account, err
}

func (s *CreditService) applyInTx(tx *gorm.DB, userID uint, amount models.Credit, direction, txnType, reference, remark string) (*models.CreditAccount, error) {
	repo := s.creditRepo.WithTx(tx)

	if _, err := repo.GetTransactionByReference(reference); err == nil {
		return nil, errReferenceApplied
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account, err := repo.GetAccountByUserIDForUpdate(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = &models.CreditAccount{UserID: userID}
		if err := repo.CreateAccount(account); err != nil {
			return nil, err
		}
		// 新建行再加锁，避免并发建户后无锁更新
		account, err = repo.GetAccountByUserIDForUpdate(userID)
	}
	if err != nil {
		return nil, err
	}

	before := account.Balance
	var after models.Credit
	if direction == constants.CreditTxnDirectionOut {
		if before.LessThan(amount.Decimal) {
			return nil, ErrInsufficientCredits
		}
		after = models.NewCreditFromDecimal(before.Sub(amount.Decimal))
	} else {
		after = models.NewCreditFromDecimal(before.Add(amount.Decimal))
	}

	account.Balance = after
	if err := repo.UpdateAccount(account); err != nil {
		return nil, err
	}

	txn := &models.CreditTransaction{
		UserID:        userID,
		Type:          txnType,
		Direction:     direction,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		Remark:        remark,
	}
	if err := repo.CreateTransaction(txn); err != nil {
		if isDuplicateKey(err) {
			return nil, errReferenceApplied
		}
		return nil, err
	}
	return account, nil
}

// ListTransactions 获取用户积分流水
func (s *CreditService) ListTransactions(ctx context.Context, filter repository.CreditTransactionListFilter) ([]models.CreditTransaction, int64, error) {
	txns, total, err := s.creditRepo.ListTransactions(filter)
	if err != nil {
		return nil, 0, wrapStoreErr(err)
	}
	return txns, total, nil
}
