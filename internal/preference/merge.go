package preference

import "strings"

// Merge 把模型本轮返回的记录合并到当前记录
// 规则: 逐字段覆盖，只有非空的新值才会覆盖旧值；模型漏掉的字段保持原值
// 枚举字段无法识别时丢弃，数值字段无法解析时在反序列化阶段已被丢弃
func Merge(base, incoming Record) Record {
	out := base

	// 模型回显记录时常把未知预算写成 0，只接受正数
	if incoming.Budget.Positive() {
		out.Budget = incoming.Budget
	}
	mergeString(&out.BudgetBracket, incoming.BudgetBracket)

	mergeProfile(&out.PCProfile, incoming.PCProfile)
	mergeEnvironment(&out.Environment, incoming.Environment)

	mergeString(&out.OwnedComponents, incoming.OwnedComponents)
	mergeString(&out.BrandPreference, incoming.BrandPreference)
	mergeString(&out.OtherPreferences, incoming.OtherPreferences)

	if lv := NormalizeLevel(string(incoming.Aesthetics)); lv != "" {
		out.Aesthetics = lv
	}
	if cs := NormalizeCaseSize(string(incoming.CaseSize)); cs != "" {
		out.CaseSize = cs
	}
	if lv := NormalizeLevel(string(incoming.NoiseTolerance)); lv != "" {
		out.NoiseTolerance = lv
	}
	return out
}

// MergeEnvironment 只合并环境子记录，用于旁路补全
func MergeEnvironment(base Record, env Environment) Record {
	out := base
	mergeEnvironment(&out.Environment, env)
	return out
}

func mergeProfile(dst *PCProfile, src PCProfile) {
	mergeString(&dst.MachineType, src.MachineType)
	mergeString(&dst.Purpose, src.Purpose)
	mergeString(&dst.GamingType, src.GamingType)
	mergeString(&dst.WorkField, src.WorkField)
	mergeString(&dst.CreativeType, src.CreativeType)
	mergeString(&dst.CreativeResolution, src.CreativeResolution)
}

func mergeEnvironment(dst *Environment, src Environment) {
	mergeString(&dst.City, src.City)
	if cc := strings.ToUpper(strings.TrimSpace(src.CountryCode)); cc != "" {
		dst.CountryCode = cc
	}
	mergeAmount(&dst.Latitude, src.Latitude)
	mergeAmount(&dst.Longitude, src.Longitude)
	mergeAmount(&dst.AnnualMeanTemp, src.AnnualMeanTemp)
	mergeAmount(&dst.AnnualMaxTemp, src.AnnualMaxTemp)
	mergeAmount(&dst.AnnualMinTemp, src.AnnualMinTemp)
	mergeString(&dst.Ventilation, src.Ventilation)
	mergeString(&dst.Dust, src.Dust)
	mergeString(&dst.Room, src.Room)
	if c := NormalizeConsent(string(src.LocationConsent)); c != "" {
		dst.LocationConsent = c
	}
}

func mergeString(dst *string, src string) {
	if v := strings.TrimSpace(src); v != "" {
		*dst = v
	}
}

func mergeAmount(dst *Amount, src Amount) {
	if src.Valid() {
		*dst = src
	}
}
