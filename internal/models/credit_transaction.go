package models

import (
	"time"
)

// CreditTransaction 积分流水
type CreditTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                        // 主键
	UserID        uint      `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Type          string    `gorm:"not null" json:"type"`                                        // 流水类型
	Direction     string    `gorm:"not null" json:"direction"`                                   // 方向（in/out）
	Amount        Credit    `gorm:"type:decimal(20,6);not null" json:"amount"`                   // 变动金额
	BalanceBefore Credit    `gorm:"type:decimal(20,6);not null" json:"balance_before"`           // 变动前余额
	BalanceAfter  Credit    `gorm:"type:decimal(20,6);not null" json:"balance_after"`            // 变动后余额
	Reference     string    `gorm:"uniqueIndex;not null" json:"reference"`                       // 唯一参考号（幂等防重）
	Remark        string    `gorm:"type:text" json:"remark"`                                     // 备注
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
