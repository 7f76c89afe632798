package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// 代金券相关错误
var (
	ErrVoucherNotFound       = errors.New("voucher not found")
	ErrVoucherExpired        = errors.New("voucher expired")
	ErrVoucherExhausted      = errors.New("voucher exhausted")
	ErrVoucherPlanIneligible = errors.New("voucher plan ineligible")
	ErrVoucherOrderTooLow    = errors.New("voucher order value too low")
	ErrVoucherAlreadyUsed    = errors.New("voucher already used")
	ErrVoucherCodeInvalid    = errors.New("voucher code invalid")
)

// 积分相关错误
var (
	ErrCreditAccountNotFound = errors.New("credit account not found")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrCreditAmountInvalid   = errors.New("credit amount invalid")
)

// 生成计费相关错误
var (
	ErrChargeNotFound      = errors.New("generation charge not found")
	ErrChargeStatusInvalid = errors.New("generation charge status invalid")
	ErrGenerationFailed    = errors.New("generation failed")
)

// ErrStoreUnavailable 账务存储不可用（超时或连接失败，调用方需按失败关闭处理）
var ErrStoreUnavailable = errors.New("store unavailable")

// isDuplicateKey 判断是否唯一索引冲突（TranslateError 覆盖不到的驱动按消息兜底）
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// wrapStoreErr 将存储超时归一为 ErrStoreUnavailable
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreUnavailable
	}
	return err
}
