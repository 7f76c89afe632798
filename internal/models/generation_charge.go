package models

import (
	"time"
)

// GenerationCharge 生成计费单
//
// 状态机：pending → debited → settled / refunded / partial_discrepancy。
// debited 之后必须最终落到某个终态，调用方取消不允许把计费单留在 debited。
type GenerationCharge struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                       // 主键
	ReservationNo string     `gorm:"uniqueIndex;not null" json:"reservation_no"`                 // 预留单号
	UserID        uint       `gorm:"index;not null" json:"user_id"`                              // 用户ID
	ModelID       string     `gorm:"index;not null" json:"model_id"`                             // AI 模型标识
	EstimatedCost Credit     `gorm:"type:decimal(20,6);not null" json:"estimated_cost"`          // 预估成本（保守上界）
	ActualCost    Credit     `gorm:"type:decimal(20,6);not null;default:0" json:"actual_cost"`   // 实际成本（结算后写入）
	Status        string     `gorm:"index;not null" json:"status"`                               // 状态
	FailReason    string     `gorm:"type:text" json:"fail_reason"`                               // 失败/退款原因
	DebitedAt     *time.Time `json:"debited_at"`                                                 // 扣费时间
	SettledAt     *time.Time `json:"settled_at"`                                                 // 结算时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (GenerationCharge) TableName() string {
	return "generation_charges"
}
