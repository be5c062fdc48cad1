package catalog

import (
	"math"
	"math/rand/v2"
	"sort"

	"pcbuild/internal/model"
)

// 默认参数
const (
	DefaultSampleCap   = 160
	DefaultPerCategory = 20
)

// Options 候选集参数
type Options struct {
	// SampleCap 没有预算时的候选上限
	SampleCap int
	// PerCategory 有预算时每个类别保留的数量
	PerCategory int
}

func (o Options) withDefaults() Options {
	if o.SampleCap <= 0 {
		o.SampleCap = DefaultSampleCap
	}
	if o.PerCategory <= 0 {
		o.PerCategory = DefaultPerCategory
	}
	return o
}

// Filter 把完整目录缩减为放进提示词的候选集
// 没有预算（<= 0）: 目录小于上限时原样返回，否则每次重新均匀随机抽样
// 有预算: 按类别分组，目标价 = 预算 × 类别比例，按与目标价的距离升序取前 N 个，
// 跨类别按 ID 去重
func Filter(items []model.Component, budget float64, opts Options) []model.Component {
	opts = opts.withDefaults()
	if budget <= 0 || math.IsNaN(budget) || math.IsInf(budget, 0) {
		return sample(items, opts.SampleCap)
	}

	groups := make(map[string][]model.Component)
	for _, c := range items {
		cat := NormalizeCategory(c.Category)
		groups[cat] = append(groups[cat], c)
	}

	out := make([]model.Component, 0, len(groups)*opts.PerCategory)
	seen := make(map[string]struct{}, len(items))
	for _, cat := range categoryOrder(groups) {
		target := budget * Share(cat)
		ranked := rankByDistance(groups[cat], target)

		kept := 0
		for _, c := range ranked {
			if kept >= opts.PerCategory {
				break
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
			kept++
		}
	}
	return out
}

// sample 目录不超过上限时返回副本，否则随机抽取 limit 个
func sample(items []model.Component, limit int) []model.Component {
	out := make([]model.Component, len(items))
	copy(out, items)
	if len(out) <= limit {
		return out
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:limit]
}

// rankByDistance 按与目标价的绝对距离升序，距离相同按 ID
func rankByDistance(items []model.Component, target float64) []model.Component {
	ranked := make([]model.Component, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := math.Abs(ranked[i].Price - target)
		dj := math.Abs(ranked[j].Price - target)
		if di != dj {
			return di < dj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// categoryOrder 固定类别在前，其余类别按名称排序
func categoryOrder(groups map[string][]model.Component) []string {
	order := make([]string, 0, len(groups))
	for _, cat := range Categories {
		if _, ok := groups[cat]; ok {
			order = append(order, cat)
		}
	}
	var extra []string
	for cat := range groups {
		if _, known := proportions[cat]; !known {
			extra = append(extra, cat)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// Summary 放进提示词的配件摘要，只包含 ID、名称、价格、类别
type Summary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// Summaries 生成候选集摘要
func Summaries(items []model.Component) []Summary {
	out := make([]Summary, 0, len(items))
	for _, c := range items {
		out = append(out, Summary{ID: c.ID, Name: c.Name, Price: c.Price, Category: NormalizeCategory(c.Category)})
	}
	return out
}
