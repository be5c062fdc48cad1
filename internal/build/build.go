// Package build 把模型推荐的配件 ID 映射回目录中的完整配件，生成配置单
package build

import (
	"math"
	"regexp"
	"strings"

	"pcbuild/internal/model"
	"pcbuild/internal/preference"
)

// WarningsMarker 旧格式中兼容性警告在理由文本里的标记
const WarningsMarker = "Compatibility Warnings:"

// Build 配置单
// 配件以完整记录保存，不依赖目录的后续变化
type Build struct {
	Components    []model.Component `json:"components"`
	TotalPrice    float64           `json:"totalPrice"`
	Justification string            `json:"justification,omitempty"`
	Warnings      []string          `json:"warnings"`
}

// Empty 没有任何配件解析成功
// 与 nil（还没有配置单）是不同的状态
func (b *Build) Empty() bool {
	return b != nil && len(b.Components) == 0
}

// Input 模型给出的推荐
type Input struct {
	ComponentIDs  []string
	DeclaredTotal preference.Amount
	Justification string
	// Warnings 结构化的警告列表，存在时优先使用
	Warnings []string
}

// LookupFunc 按 ID 查找目录
type LookupFunc func(id string) (model.Component, bool)

// Projection 映射结果
type Projection struct {
	Build *Build
	// Unresolved 目录中找不到的 ID（模型编造的 ID）
	Unresolved []string
}

// Project 生成配置单
// 找不到的 ID 被丢弃并记录在 Unresolved 中，不会导致整个配置单失败；
// 重复的 ID 只保留一次
func Project(in Input, lookup LookupFunc) Projection {
	b := &Build{
		Components:    make([]model.Component, 0, len(in.ComponentIDs)),
		Justification: strings.TrimSpace(in.Justification),
	}
	var unresolved []string
	seen := make(map[string]struct{}, len(in.ComponentIDs))

	for _, raw := range in.ComponentIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c, ok := lookup(id)
		if !ok {
			unresolved = append(unresolved, id)
			continue
		}
		b.Components = append(b.Components, c)
	}

	b.TotalPrice = total(in.DeclaredTotal, b.Components)
	b.Warnings = warnings(in.Warnings, b.Justification)
	return Projection{Build: b, Unresolved: unresolved}
}

// total 优先使用模型声明的总价，否则为配件价格之和（保留两位小数）
func total(declared preference.Amount, components []model.Component) float64 {
	if v, ok := declared.Float(); ok && v >= 0 {
		return v
	}
	sum := 0.0
	for _, c := range components {
		sum += c.Price
	}
	return math.Round(sum*100) / 100
}

func warnings(structured []string, justification string) []string {
	out := make([]string, 0, len(structured))
	for _, w := range structured {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	if len(out) > 0 {
		return out
	}
	return ExtractWarnings(justification)
}

var listPrefix = regexp.MustCompile(`^\s*(?:[-*•·]+\s*|\d+[.)]\s+)`)

// ExtractWarnings 从理由文本中提取兼容性警告
// 标记之后每一行一条，去掉列表符号；没有标记返回空列表
func ExtractWarnings(justification string) []string {
	idx := strings.Index(justification, WarningsMarker)
	if idx < 0 {
		return []string{}
	}
	rest := justification[idx+len(WarningsMarker):]

	out := []string{}
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(listPrefix.ReplaceAllString(line, ""))
		if line == "" || isNone(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func isNone(line string) bool {
	switch preference.Fold(strings.TrimRight(line, ".")) {
	case "none", "nenhum", "nenhuma", "n/a":
		return true
	}
	return false
}
