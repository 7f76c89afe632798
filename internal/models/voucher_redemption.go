package models

import (
	"time"
)

// VoucherRedemption 代金券核销记录
//
// (voucher_id, user_id, seq) 上的唯一索引是防止同一用户并发重复核销的
// 最终防线：单次核销券 seq 恒为 1，同一用户的第二次插入必然冲突；
// 允许多次核销的券按既有核销次数递增 seq。
type VoucherRedemption struct {
	ID                     uint      `gorm:"primarykey" json:"id"`                                                    // 主键
	VoucherID              uint      `gorm:"not null;uniqueIndex:idx_voucher_user_seq" json:"voucher_id"`            // 代金券ID
	UserID                 uint      `gorm:"not null;uniqueIndex:idx_voucher_user_seq;index" json:"user_id"`         // 用户ID
	Seq                    int       `gorm:"not null;default:1;uniqueIndex:idx_voucher_user_seq" json:"seq"`         // 同一用户第几次核销
	OrderValueAtRedemption Money     `gorm:"type:decimal(20,2);not null;default:0" json:"order_value_at_redemption"` // 核销时订单金额
	RedeemedAt             time.Time `gorm:"index;not null" json:"redeemed_at"`                                      // 核销时间
}

// TableName 指定表名
func (VoucherRedemption) TableName() string {
	return "voucher_redemptions"
}
