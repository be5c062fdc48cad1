// Package catalog 管理配件目录
// 负责加载、缓存目录，并在每次调用模型前把目录缩减为与预算相关的候选集
package catalog

import (
	"pcbuild/internal/preference"
)

// 固定的配件类别
const (
	CategoryProcessor   = "processor"
	CategoryMotherboard = "motherboard"
	CategoryMemory      = "memory"
	CategoryStorage     = "storage"
	CategoryGPU         = "gpu"
	CategoryPowerSupply = "power_supply"
	CategoryCase        = "case"
	CategoryCooler      = "cooler"
)

// Categories 固定类别，按输出顺序排列
var Categories = []string{
	CategoryProcessor,
	CategoryMotherboard,
	CategoryMemory,
	CategoryStorage,
	CategoryGPU,
	CategoryPowerSupply,
	CategoryCase,
	CategoryCooler,
}

// proportions 每个类别占总预算的比例，合计 0.97
var proportions = map[string]float64{
	CategoryProcessor:   0.20,
	CategoryMotherboard: 0.12,
	CategoryMemory:      0.08,
	CategoryStorage:     0.08,
	CategoryGPU:         0.32,
	CategoryPowerSupply: 0.07,
	CategoryCase:        0.06,
	CategoryCooler:      0.04,
}

// DefaultShare 不在比例表中的类别使用的比例
const DefaultShare = 0.05

// Share 返回类别的预算比例
func Share(category string) float64 {
	if p, ok := proportions[category]; ok {
		return p
	}
	return DefaultShare
}

var categoryAliases = map[string]string{
	"cpu":            CategoryProcessor,
	"processador":    CategoryProcessor,
	"processor":      CategoryProcessor,
	"placa mae":      CategoryMotherboard,
	"placa-mae":      CategoryMotherboard,
	"motherboard":    CategoryMotherboard,
	"mobo":           CategoryMotherboard,
	"ram":            CategoryMemory,
	"memoria":        CategoryMemory,
	"memoria ram":    CategoryMemory,
	"memory":         CategoryMemory,
	"ssd":            CategoryStorage,
	"hd":             CategoryStorage,
	"hdd":            CategoryStorage,
	"armazenamento":  CategoryStorage,
	"storage":        CategoryStorage,
	"gpu":            CategoryGPU,
	"placa de video": CategoryGPU,
	"graphics card":  CategoryGPU,
	"video card":     CategoryGPU,
	"psu":            CategoryPowerSupply,
	"fonte":          CategoryPowerSupply,
	"power supply":   CategoryPowerSupply,
	"power_supply":   CategoryPowerSupply,
	"gabinete":       CategoryCase,
	"case":           CategoryCase,
	"chassis":        CategoryCase,
	"cooler":         CategoryCooler,
	"water cooler":   CategoryCooler,
	"air cooler":     CategoryCooler,
	"refrigeracao":   CategoryCooler,
	"cpu cooler":     CategoryCooler,
}

// NormalizeCategory 把目录中各种类别写法映射到固定类别
// 无法识别的保留原值（小写）
func NormalizeCategory(c string) string {
	folded := preference.Fold(c)
	if v, ok := categoryAliases[folded]; ok {
		return v
	}
	return folded
}
