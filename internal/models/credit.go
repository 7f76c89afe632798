package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// creditScale 积分精度：按单次生成的 token 计费会出现远小于一分钱的金额，
// 统一保留 6 位小数，四舍五入（round half away from zero）。
const creditScale = 6

// Credit 积分金额类型（保留 6 位小数）
type Credit struct {
	decimal.Decimal
}

// NewCreditFromDecimal 从 decimal 创建积分金额
func NewCreditFromDecimal(amount decimal.Decimal) Credit {
	return Credit{Decimal: amount.Round(creditScale)}
}

// NewCreditFromMoney 将订单金额转换为积分金额
func NewCreditFromMoney(m Money) Credit {
	return NewCreditFromDecimal(m.Decimal)
}

// MarshalJSON 统一输出 6 位小数的字符串
func (c Credit) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Decimal.Round(creditScale).StringFixed(creditScale))
}

// UnmarshalJSON 解析积分金额（字符串或数字）
func (c *Credit) UnmarshalJSON(b []byte) error {
	d, err := decodeDecimal(b)
	if err != nil {
		return err
	}
	c.Decimal = d.Round(creditScale)
	return nil
}

// Value 用于数据库写入
func (c Credit) Value() (driver.Value, error) {
	return c.Decimal.Round(creditScale).Value()
}

// Scan 用于数据库读取
func (c *Credit) Scan(value interface{}) error {
	if err := c.Decimal.Scan(value); err != nil {
		return err
	}
	c.Decimal = c.Decimal.Round(creditScale)
	return nil
}

// String 返回 6 位小数格式
func (c Credit) String() string {
	return c.Decimal.Round(creditScale).StringFixed(creditScale)
}
