package preference

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Amount 可选数值字段
// 模型可能返回数字，也可能返回带千分位/小数逗号的本地化字符串
// 无法解析的值视为未设置，而不是存入一个错误的数
type Amount struct {
	value float64
	valid bool
}

// NewAmount 创建一个已设置的 Amount
func NewAmount(v float64) Amount {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}
	}
	return Amount{value: v, valid: true}
}

// Float 返回数值以及是否已设置
func (a Amount) Float() (float64, bool) {
	return a.value, a.valid
}

// Valid 是否已设置
func (a Amount) Valid() bool {
	return a.valid
}

// Positive 已设置且大于 0
func (a Amount) Positive() bool {
	return a.valid && a.value > 0
}

// IsZero 供 json omitzero 使用
func (a Amount) IsZero() bool {
	return !a.valid
}

// MarshalJSON 未设置时输出 null
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}

// UnmarshalJSON 接受数字或本地化字符串
// 解析失败不返回错误，字段保持未设置
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if v, ok := ParseAmount(s); ok {
			*a = NewAmount(v)
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*a = NewAmount(v)
	return nil
}

// currencyPrefixes 数字前允许出现的货币标记
var currencyPrefixes = []string{"r$", "us$", "$", "€", "£", "brl", "usd", "eur"}

// currencySuffixes 数字后允许出现的货币单位
var currencySuffixes = []string{"reais", "real", "brl", "dólares", "dolares", "dollars", "usd", "euros", "eur", "$", "€", "£"}

// ParseAmount 把本地化的数字字符串解析为 float64
// 支持: "3000", "3.000", "3,000.50", "R$ 3.000,00", "3 000", "3k", "3 mil", "5 mil reais"
// 区间（"3000 a 4000"）和夹杂文字的输入不是一个数，返回 false
func ParseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	// 先去掉货币单位，再识别 "mil"/"k"
	for _, suf := range currencySuffixes {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suf))
			s = strings.TrimSpace(strings.TrimSuffix(s, " de"))
			break
		}
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "mil"):
		multiplier = 1000
		s = strings.TrimSpace(strings.TrimSuffix(s, "mil"))
	case strings.HasSuffix(s, "k"):
		multiplier = 1000
		s = strings.TrimSpace(strings.TrimSuffix(s, "k"))
	}
	if s == "" {
		return 0, false
	}

	// 剩下的只能是数字、分隔符和开头的负号
	for i, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
		case r == '-' && i == 0:
		case unicode.IsSpace(r), r == '\'', r == '_':
		default:
			return 0, false
		}
	}

	grouped, ok := joinDigitGroups(s)
	if !ok || grouped == "" || grouped == "-" {
		return 0, false
	}

	normalized, ok := normalizeSeparators(grouped)
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v * multiplier, true
}

// joinDigitGroups 去掉空格/撇号/下划线形式的千分位
// 只有后面每一组都恰好是 3 位数字时才算千分位（最后一组可以带小数部分）
func joinDigitGroups(s string) (string, bool) {
	groups := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '_'
	})
	if len(groups) == 0 {
		return "", false
	}
	if len(groups) == 1 {
		return groups[0], true
	}

	head := strings.TrimPrefix(groups[0], "-")
	if len(head) == 0 || len(head) > 3 || !allDigits(head) {
		return "", false
	}
	for i, g := range groups[1:] {
		if i == len(groups)-2 && len(g) > 3 && (g[3] == '.' || g[3] == ',') {
			if !allDigits(g[:3]) || !allDigits(g[4:]) || len(g) == 4 {
				return "", false
			}
			continue
		}
		if len(g) != 3 || !allDigits(g) {
			return "", false
		}
	}
	return strings.Join(groups, ""), true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeSeparators 统一为 "." 小数点、无千分位的形式
func normalizeSeparators(s string) (string, bool) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		// 最后出现的分隔符是小数点
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			if commas > 1 {
				return "", false
			}
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1), true
		}
		if dots > 1 {
			return "", false
		}
		return strings.ReplaceAll(s, ",", ""), true

	case commas > 0:
		return resolveSingleSeparator(s, ",", commas)

	case dots > 0:
		return resolveSingleSeparator(s, ".", dots)
	}
	return s, true
}

// resolveSingleSeparator 只出现一种分隔符时判断它是千分位还是小数点
// 出现多次，或者只出现一次且后面恰好 3 位数字: 千分位
func resolveSingleSeparator(s, sep string, count int) (string, bool) {
	if count > 1 {
		groups := strings.Split(s, sep)
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		return strings.ReplaceAll(s, sep, ""), true
	}

	idx := strings.Index(s, sep)
	tail := s[idx+1:]
	head := strings.TrimPrefix(s[:idx], "-")
	if len(tail) == 3 && head != "" && head != "0" {
		return strings.Replace(s, sep, "", 1), true
	}
	return strings.Replace(s, sep, ".", 1), true
}
