package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementService 生成费用结算服务
//
// 一次生成调用的账务生命周期：预扣（Reserve）→ 生成 → 结算（Settle）或
// 退款（Refund）。真实成本只有供应商返回后才可知，预扣按保守上界执行。
// debited 之后的单据必须走到终态，超时回退由 ExpireStuck 兜底。
type SettlementService struct {
	creditService      *CreditService
	chargeRepo         repository.GenerationChargeRepository
	lowCreditThreshold decimal.Decimal
	reservationTTL     time.Duration
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	creditService *CreditService,
	chargeRepo repository.GenerationChargeRepository,
	lowCreditThreshold decimal.Decimal,
	reservationTTL time.Duration,
) *SettlementService {
	if reservationTTL <= 0 {
		reservationTTL = 5 * time.Minute
	}
	return &SettlementService{
		creditService:      creditService,
		chargeRepo:         chargeRepo,
		lowCreditThreshold: lowCreditThreshold,
		reservationTTL:     reservationTTL,
	}
}

// ReservationTTL 返回扣费后允许停留在 debited 的时限
func (s *SettlementService) ReservationTTL() time.Duration {
	return s.reservationTTL
}

// Reserve 预扣生成成本
//
// 余额不高于低额阈值或不足以覆盖预估成本时直接拒绝，
// 不发起任何供应商调用。
func (s *SettlementService) Reserve(ctx context.Context, userID uint, modelID string, estimatedCost models.Credit) (*models.GenerationCharge, error) {
	if !estimatedCost.IsPositive() {
		return nil, ErrCreditAmountInvalid
	}

	account, err := s.creditService.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThanOrEqual(s.lowCreditThreshold) {
		return nil, ErrInsufficientCredits
	}

	charge := &models.GenerationCharge{
		ReservationNo: uuid.NewString(),
		UserID:        userID,
		ModelID:       modelID,
		EstimatedCost: estimatedCost,
		Status:        constants.ChargeStatusPending,
	}
	if err := s.chargeRepo.Create(charge); err != nil {
		return nil, wrapStoreErr(err)
	}

	// 扣费与 pending→debited 翻转必须同事务提交：任一步失败则整体回滚，
	// 不会出现余额已扣但单据停在 pending、超时扫描又扫不到的悬账。
	reference := fmt.Sprintf("generation_debit:%s", charge.ReservationNo)
	remark := fmt.Sprintf("generation %s estimated cost", modelID)
	err = s.chargeRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.creditService.DebitInTx(tx.WithContext(ctx), userID, estimatedCost, constants.CreditTxnTypeGenerationDebit, reference, remark); err != nil {
			return err
		}
		now := time.Now()
		charge.Status = constants.ChargeStatusDebited
		charge.DebitedAt = &now
		return s.chargeRepo.WithTx(tx).Update(charge)
	})
	if err != nil {
		// 未扣到费的单据留在 pending 仅作审计，不进入超时回退扫描
		charge.Status = constants.ChargeStatusPending
		charge.DebitedAt = nil
		charge.FailReason = err.Error()
		if updateErr := s.chargeRepo.Update(charge); updateErr != nil {
			logger.Warnw("settlement mark pending charge failed",
				"reservation_no", charge.ReservationNo, "error", updateErr)
		}
		return nil, err
	}
	return charge, nil
}

// Settle 按实际成本结算
//
// 实际低于预估退差额；高于预估补扣差额，补扣余额不足时记为
// partial_discrepancy（生成已交付，不可回收），只记录不报错。
func (s *SettlementService) Settle(ctx context.Context, reservationNo string, actualCost models.Credit) (string, error) {
	if actualCost.IsNegative() {
		return "", ErrCreditAmountInvalid
	}

	var status string
	err := s.chargeRepo.Transaction(func(tx *gorm.DB) error {
		chargeRepo := s.chargeRepo.WithTx(tx)
		charge, err := chargeRepo.GetByReservationNoForUpdate(reservationNo)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChargeNotFound
		}
		if err != nil {
			return err
		}

		switch charge.Status {
		case constants.ChargeStatusDebited:
		case constants.ChargeStatusSettled, constants.ChargeStatusRefunded, constants.ChargeStatusPartialDiscrepancy:
			// 已到终态，重复结算按幂等处理
			status = charge.Status
			return nil
		default:
			return ErrChargeStatusInvalid
		}

		diff := charge.EstimatedCost.Sub(actualCost.Decimal)
		switch {
		case diff.IsPositive():
			reference := fmt.Sprintf("generation_refund:%s", reservationNo)
			remark := fmt.Sprintf("generation %s settle refund", charge.ModelID)
			if _, err := s.creditService.CreditInTx(tx, charge.UserID, models.NewCreditFromDecimal(diff), constants.CreditTxnTypeGenerationRefund, reference, remark); err != nil {
				return err
			}
			charge.Status = constants.ChargeStatusSettled
		case diff.IsNegative():
			shortfall := models.NewCreditFromDecimal(diff.Neg())
			reference := fmt.Sprintf("generation_extra:%s", reservationNo)
			remark := fmt.Sprintf("generation %s extra cost", charge.ModelID)
			_, err := s.creditService.DebitInTx(tx, charge.UserID, shortfall, constants.CreditTxnTypeGenerationExtra, reference, remark)
			if errors.Is(err, ErrInsufficientCredits) {
				charge.Status = constants.ChargeStatusPartialDiscrepancy
				charge.FailReason = fmt.Sprintf("uncollected shortfall %s", shortfall.String())
				logger.Warnw("settlement shortfall uncollected",
					"reservation_no", reservationNo,
					"user_id", charge.UserID,
					"shortfall", shortfall.String())
			} else if err != nil {
				return err
			} else {
				charge.Status = constants.ChargeStatusSettled
			}
		default:
			charge.Status = constants.ChargeStatusSettled
		}

		now := time.Now()
		charge.ActualCost = actualCost
		charge.SettledAt = &now
		if err := chargeRepo.Update(charge); err != nil {
			return err
		}
		status = charge.Status
		return nil
	})
	if err != nil {
		return "", wrapStoreErr(err)
	}
	return status, nil
}

// Refund 供应商失败后全额退回预扣成本
func (s *SettlementService) Refund(ctx context.Context, reservationNo, reason string) error {
	err := s.chargeRepo.Transaction(func(tx *gorm.DB) error {
		chargeRepo := s.chargeRepo.WithTx(tx)
		charge, err := chargeRepo.GetByReservationNoForUpdate(reservationNo)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChargeNotFound
		}
		if err != nil {
			return err
		}

		switch charge.Status {
		case constants.ChargeStatusDebited:
		case constants.ChargeStatusSettled, constants.ChargeStatusRefunded, constants.ChargeStatusPartialDiscrepancy:
			return nil
		default:
			return ErrChargeStatusInvalid
		}

		reference := fmt.Sprintf("generation_refund:%s", reservationNo)
		remark := fmt.Sprintf("generation %s refund: %s", charge.ModelID, reason)
		if _, err := s.creditService.CreditInTx(tx, charge.UserID, charge.EstimatedCost, constants.CreditTxnTypeGenerationRefund, reference, remark); err != nil {
			return err
		}

		now := time.Now()
		charge.Status = constants.ChargeStatusRefunded
		charge.FailReason = reason
		charge.SettledAt = &now
		return chargeRepo.Update(charge)
	})
	return wrapStoreErr(err)
}

// ExpireStuck 回退超过预留时限仍未结算的已扣费单据
func (s *SettlementService) ExpireStuck(ctx context.Context) (int, error) {
	before := time.Now().Add(-s.reservationTTL)
	charges, err := s.chargeRepo.ListStuckDebited(before)
	if err != nil {
		return 0, wrapStoreErr(err)
	}

	refunded := 0
	for _, charge := range charges {
		if err := s.Refund(ctx, charge.ReservationNo, "settlement timeout"); err != nil {
			logger.Errorw("settlement expire stuck charge failed",
				"reservation_no", charge.ReservationNo, "error", err)
			continue
		}
		refunded++
	}
	return refunded, nil
}
