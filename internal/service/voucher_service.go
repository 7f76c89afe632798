package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatmeter-next/internal/cache"
	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// errRedeemConflict 核销竞争失败（计数 CAS 未命中或唯一索引冲突），允许重试一次
var errRedeemConflict = errors.New("voucher redeem conflict")

// VoucherValidation 代金券校验结果
type VoucherValidation struct {
	Voucher  *models.Voucher `json:"voucher"`  // 通过校验的代金券
	Discount models.Money    `json:"discount"` // 按类型计算的抵扣金额
}

// VoucherService 代金券校验与核销服务
//
// 校验是纯只读操作，可任意并发重复调用；核销在单事务内重跑全部
// 资格检查再落账，计数条件更新与核销记录唯一索引共同防止超发。
type VoucherService struct {
	voucherRepo    repository.VoucherRepository
	redemptionRepo repository.VoucherRedemptionRepository
	creditService  *CreditService
	cacheTTL       time.Duration
}

// NewVoucherService 创建代金券服务
func NewVoucherService(
	voucherRepo repository.VoucherRepository,
	redemptionRepo repository.VoucherRedemptionRepository,
	creditService *CreditService,
	cacheTTL time.Duration,
) *VoucherService {
	return &VoucherService{
		voucherRepo:    voucherRepo,
		redemptionRepo: redemptionRepo,
		creditService:  creditService,
		cacheTTL:       cacheTTL,
	}
}

// Validate 校验代金券资格并计算抵扣金额（只读，不改变任何状态）
func (s *VoucherService) Validate(ctx context.Context, code string, userID uint, orderValue models.Money, plan string) (*VoucherValidation, error) {
	code = repository.NormalizeCode(code)
	if code == "" {
		return nil, ErrVoucherCodeInvalid
	}

	voucher, err := s.loadVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(s.redemptionRepo, voucher, userID, orderValue, plan); err != nil {
		return nil, err
	}

	return &VoucherValidation{
		Voucher:  voucher,
		Discount: computeDiscount(voucher, orderValue),
	}, nil
}

// Redeem 核销代金券
//
// 竞争失败内部带新鲜校验重试一次，仍失败按 EXHAUSTED/ALREADY_USED 返回。
func (s *VoucherService) Redeem(ctx context.Context, code string, userID uint, orderValue models.Money, plan string) (*VoucherValidation, error) {
	code = repository.NormalizeCode(code)
	if code == "" {
		return nil, ErrVoucherCodeInvalid
	}

	result, err := s.redeemOnce(ctx, code, userID, orderValue, plan)
	if errors.Is(err, errRedeemConflict) {
		result, err = s.redeemOnce(ctx, code, userID, orderValue, plan)
	}
	if errors.Is(err, errRedeemConflict) {
		// 两次都输掉竞争：重查一次以给出准确的拒绝原因
		voucher, loadErr := s.voucherRepo.GetByCode(code)
		if loadErr == nil && voucher != nil && voucher.Exhausted() {
			return nil, ErrVoucherExhausted
		}
		return nil, ErrVoucherAlreadyUsed
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if cache.Enabled() {
		_ = cache.DelVoucherByCode(ctx, code)
	}
	return result, nil
}

// redeemOnce 单次核销尝试：事务内重跑资格检查并落账
func (s *VoucherService) redeemOnce(ctx context.Context, code string, userID uint, orderValue models.Money, plan string) (*VoucherValidation, error) {
	var result *VoucherValidation
	err := s.voucherRepo.Transaction(func(tx *gorm.DB) error {
		voucherRepo := s.voucherRepo.WithTx(tx)
		redemptionRepo := s.redemptionRepo.WithTx(tx)

		voucher, err := voucherRepo.GetByCode(code)
		if err != nil {
			return err
		}
		if voucher == nil {
			return ErrVoucherNotFound
		}

		if err := s.checkEligibility(redemptionRepo, voucher, userID, orderValue, plan); err != nil {
			return err
		}

		updated, err := voucherRepo.IncrementUsesCount(voucher.ID)
		if err != nil {
			return err
		}
		if !updated {
			return errRedeemConflict
		}

		used, err := redemptionRepo.CountByUser(voucher.ID, userID)
		if err != nil {
			return err
		}
		redemption := &models.VoucherRedemption{
			VoucherID:              voucher.ID,
			UserID:                 userID,
			Seq:                    int(used) + 1,
			OrderValueAtRedemption: orderValue,
			RedeemedAt:             time.Now(),
		}
		if err := redemptionRepo.Create(redemption); err != nil {
			if isDuplicateKey(err) {
				return errRedeemConflict
			}
			return err
		}

		if voucher.VoucherType == constants.VoucherTypeCreditGrant {
			reference := fmt.Sprintf("voucher_grant:%d:%d:%d", voucher.ID, userID, redemption.Seq)
			remark := fmt.Sprintf("voucher %s redeemed", voucher.Code)
			if _, err := s.creditService.CreditInTx(tx.WithContext(ctx), userID, models.NewCreditFromMoney(voucher.Value), constants.CreditTxnTypeVoucherGrant, reference, remark); err != nil {
				return err
			}
		}

		voucher.UsesCount++
		result = &VoucherValidation{
			Voucher:  voucher,
			Discount: computeDiscount(voucher, orderValue),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadVoucher 只读路径的代金券加载（可走短 TTL 读缓存）
func (s *VoucherService) loadVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	if cache.Enabled() && s.cacheTTL > 0 {
		if voucher, hit, err := cache.GetVoucherByCode(ctx, code); err == nil && hit {
			return voucher, nil
		}
	}

	voucher, err := s.voucherRepo.GetByCode(code)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if voucher == nil {
		// 仓库层对未命中返回 nil 而非错误，这里统一翻译成业务错误
		return nil, ErrVoucherNotFound
	}

	if cache.Enabled() && s.cacheTTL > 0 {
		_ = cache.SetVoucherByCode(ctx, voucher, s.cacheTTL)
	}
	return voucher, nil
}

// checkEligibility 按固定顺序执行资格检查，首个失败即返回，
// 保证调用方拿到的拒绝原因可确定性断言。
func (s *VoucherService) checkEligibility(redemptionRepo repository.VoucherRedemptionRepository, voucher *models.Voucher, userID uint, orderValue models.Money, plan string) error {
	if voucher.ExpiresAt != nil && !time.Now().Before(*voucher.ExpiresAt) {
		return ErrVoucherExpired
	}
	if voucher.Exhausted() {
		return ErrVoucherExhausted
	}
	if !planEligible(voucher.EligiblePlans, plan) {
		return ErrVoucherPlanIneligible
	}
	if orderValue.LessThan(voucher.MinOrderValue.Decimal) {
		return ErrVoucherOrderTooLow
	}
	if !voucher.MultiUsePerUser {
		used, err := redemptionRepo.CountByUser(voucher.ID, userID)
		if err != nil {
			return err
		}
		if used > 0 {
			return ErrVoucherAlreadyUsed
		}
	}
	return nil
}

// planEligible 判断套餐是否在适用集合内（空集合 = 全部套餐可用）
func planEligible(eligiblePlans, plan string) bool {
	plans, err := models.DecodePlanSet(eligiblePlans)
	if err != nil {
		// 脏数据按不限制处理，避免误杀存量券
		return true
	}
	if len(plans) == 0 {
		return true
	}
	for _, p := range plans {
		if p == plan {
			return true
		}
	}
	return false
}

// computeDiscount 按类型计算抵扣金额
func computeDiscount(voucher *models.Voucher, orderValue models.Money) models.Money {
	switch voucher.VoucherType {
	case constants.VoucherTypePercentage:
		discount := orderValue.Mul(voucher.Value.Div(decimal.NewFromInt(100)))
		if discount.GreaterThan(orderValue.Decimal) {
			return orderValue
		}
		return models.NewMoneyFromDecimal(discount)
	case constants.VoucherTypeFixed:
		if voucher.Value.GreaterThan(orderValue.Decimal) {
			return orderValue
		}
		return voucher.Value
	default:
		// credit_grant 不抵扣订单金额，券面值在核销时入账
		return models.NewMoneyFromDecimal(decimal.Zero)
	}
}
