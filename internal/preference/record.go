// Package preference 定义装机需求记录（Preference Record）
// 记录随着对话逐轮累积，只通过 Merge 修改
package preference

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Level 三档枚举（外观重要程度、噪音容忍度）
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// CaseSize 机箱尺寸
type CaseSize string

const (
	CaseSizeMini CaseSize = "mini"
	CaseSizeMid  CaseSize = "mid"
	CaseSizeFull CaseSize = "full"
)

// Consent 位置授权结果
type Consent string

const (
	ConsentGranted  Consent = "granted"
	ConsentDeclined Consent = "declined"
)

// PCProfile 电脑用途画像
type PCProfile struct {
	MachineType        string `json:"machineType,omitempty"`        // desktop / workstation / mini-pc
	Purpose            string `json:"purpose,omitempty"`            // 主要用途
	GamingType         string `json:"gamingType,omitempty"`         // 游戏类型（用途为游戏时）
	WorkField          string `json:"workField,omitempty"`          // 工作领域（用途为工作时）
	CreativeType       string `json:"creativeType,omitempty"`       // 创作类型（用途为剪辑/设计时）
	CreativeResolution string `json:"creativeResolution,omitempty"` // 创作分辨率，如 4K
}

// Environment 使用环境
// 城市/国家/气温可以由位置授权后的旁路补全填入
type Environment struct {
	City            string  `json:"city,omitempty"`
	CountryCode     string  `json:"countryCode,omitempty"`
	Latitude        Amount  `json:"latitude,omitzero"`
	Longitude       Amount  `json:"longitude,omitzero"`
	AnnualMeanTemp  Amount  `json:"annualMeanTemp,omitzero"`
	AnnualMaxTemp   Amount  `json:"annualMaxTemp,omitzero"`
	AnnualMinTemp   Amount  `json:"annualMinTemp,omitzero"`
	Ventilation     string  `json:"ventilation,omitempty"`
	Dust            string  `json:"dust,omitempty"`
	Room            string  `json:"room,omitempty"`
	LocationConsent Consent `json:"locationConsent,omitempty"`
}

// LocationResolved 位置问题是否已经有结论（授权、拒绝或已知城市）
func (e Environment) LocationResolved() bool {
	return e.LocationConsent != "" || e.City != ""
}

// Record 用户需求记录
// 子记录使用值类型，合并后永远不会是 nil
type Record struct {
	Budget           Amount      `json:"budget,omitzero"`
	BudgetBracket    string      `json:"budgetBracket,omitempty"`
	PCProfile        PCProfile   `json:"pcProfile"`
	Environment      Environment `json:"environment"`
	OwnedComponents  string      `json:"ownedComponents,omitempty"`
	BrandPreference  string      `json:"brandPreference,omitempty"`
	OtherPreferences string      `json:"otherPreferences,omitempty"`
	Aesthetics       Level       `json:"aesthetics,omitempty"`
	CaseSize         CaseSize    `json:"caseSize,omitempty"`
	NoiseTolerance   Level       `json:"noiseTolerance,omitempty"`
}

// HasBudget 预算问题是否已回答
func (r Record) HasBudget() bool {
	return r.Budget.Positive() || strings.TrimSpace(r.BudgetBracket) != ""
}

// BudgetValue 返回正数预算，未设置返回 0
func (r Record) BudgetValue() float64 {
	if v, ok := r.Budget.Float(); ok && v > 0 {
		return v
	}
	return 0
}

// HasPreferences 开放式偏好问题是否已回答
func (r Record) HasPreferences() bool {
	return r.OtherPreferences != "" ||
		r.BrandPreference != "" ||
		r.Aesthetics != "" ||
		r.CaseSize != "" ||
		r.NoiseTolerance != ""
}

// JSON 序列化为提示词中使用的 JSON
func (r Record) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// NormalizeLevel 把模型返回的各种写法归一到 low/medium/high
// 无法识别返回空串
func NormalizeLevel(s string) Level {
	switch Fold(s) {
	case "low", "baixa", "baixo", "pouca", "pouco", "nenhuma", "none", "quiet", "silent", "silencioso":
		return LevelLow
	case "medium", "media", "medio", "moderate", "moderada", "moderado", "normal":
		return LevelMedium
	case "high", "alta", "alto", "muita", "muito", "very important", "important", "importante":
		return LevelHigh
	}
	return ""
}

// NormalizeCaseSize 把机箱尺寸归一到 mini/mid/full
func NormalizeCaseSize(s string) CaseSize {
	switch Fold(s) {
	case "mini", "mini-itx", "itx", "small", "pequeno", "compacto", "sff":
		return CaseSizeMini
	case "mid", "mid-tower", "midtower", "medium", "medio", "atx":
		return CaseSizeMid
	case "full", "full-tower", "fulltower", "large", "grande", "e-atx":
		return CaseSizeFull
	}
	return ""
}

// NormalizeConsent 归一位置授权结果
func NormalizeConsent(s string) Consent {
	switch Fold(s) {
	case "granted", "grant", "yes", "sim", "allowed", "accepted":
		return ConsentGranted
	case "declined", "decline", "no", "nao", "denied", "refused":
		return ConsentDeclined
	}
	return ""
}

// Fold 去掉重音并转小写，用于关键字匹配
// 例如 "Edição de Vídeo" -> "edicao de video"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
