package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Voucher 代金券
type Voucher struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                        // 主键
	Code            string         `gorm:"uniqueIndex;not null" json:"code"`                            // 券码（统一大写存储）
	VoucherType     string         `gorm:"not null" json:"voucher_type"`                                // 类型（percentage_discount/fixed_discount/credit_grant）
	Value           Money          `gorm:"type:decimal(20,2);not null" json:"value"`                    // 数值（按类型解释：百分比、固定金额或积分）
	MaxUses         int            `gorm:"not null;default:0" json:"max_uses"`                          // 总使用上限（0 表示不限制）
	UsesCount       int            `gorm:"not null;default:0" json:"uses_count"`                        // 已使用次数
	EligiblePlans   string         `gorm:"type:text" json:"eligible_plans"`                             // 适用套餐 ID 集合（JSON 数组，空 = 全部）
	MinOrderValue   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_order_value"` // 使用门槛
	MultiUsePerUser bool           `gorm:"not null;default:false" json:"multi_use_per_user"`            // 是否允许同一用户多次核销
	ExpiresAt       *time.Time     `gorm:"index" json:"expires_at"`                                     // 失效时间
	Description     string         `gorm:"type:text" json:"description"`                                // 展示描述
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                     // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                              // 软删除时间
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}

// Exhausted 判断代金券是否已耗尽
func (v *Voucher) Exhausted() bool {
	return v.MaxUses > 0 && v.UsesCount >= v.MaxUses
}

// DecodePlanSet 解析适用套餐集合（空字符串视为空集合）
func DecodePlanSet(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var plans []string
	if err := json.Unmarshal([]byte(raw), &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// EncodePlanSet 序列化适用套餐集合（空集合存空字符串）
func EncodePlanSet(plans []string) (string, error) {
	if len(plans) == 0 {
		return "", nil
	}
	b, err := json.Marshal(plans)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
