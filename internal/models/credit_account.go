package models

import (
	"time"
)

// CreditAccount 用户积分账户
type CreditAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                    // 主键
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`                     // 用户ID
	Balance   Credit    `gorm:"type:decimal(20,6);not null;default:0" json:"balance"`    // 剩余积分（任何已提交事务后均 >= 0）
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                 // 更新时间
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credit_accounts"
}
