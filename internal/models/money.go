package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money 统一金额类型（以最小货币单位“分”存储，避免浮点漂移）
type Money int64

// NewMoneyFromDecimal 从十进制金额（元）创建，四舍五入到分
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money(amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// NewMoneyFromCents 从分值创建
func NewMoneyFromCents(cents int64) Money {
	return Money(cents)
}

// Cents 返回分值
func (m Money) Cents() int64 {
	return int64(m)
}

// Decimal 返回十进制金额（元）
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(100))
}

// MulRate 金额乘比例，四舍五入到分
func (m Money) MulRate(rate decimal.Decimal) Money {
	return NewMoneyFromDecimal(m.Decimal().Mul(rate))
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal().StringFixed(2))
}

// UnmarshalJSON 解析金额（字符串或数字，单位为元）
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*m = NewMoneyFromDecimal(d)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = NewMoneyFromDecimal(decimal.NewFromFloat(f))
	return nil
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
