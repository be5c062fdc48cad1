package catalog

import (
	"strings"

	"pcbuild/internal/preference"
)

// 板卡厂商在前，芯片厂商在后：
// "ASUS RTX 4060" 的品牌是 ASUS 而不是 NVIDIA
var knownBrands = []struct {
	brand  string
	tokens []string
}{
	{"ASUS", []string{"asus", "rog", "tuf"}},
	{"MSI", []string{"msi"}},
	{"Gigabyte", []string{"gigabyte", "aorus"}},
	{"ASRock", []string{"asrock"}},
	{"Zotac", []string{"zotac"}},
	{"Palit", []string{"palit"}},
	{"Galax", []string{"galax"}},
	{"PNY", []string{"pny"}},
	{"Sapphire", []string{"sapphire"}},
	{"PowerColor", []string{"powercolor"}},
	{"XFX", []string{"xfx"}},
	{"EVGA", []string{"evga"}},
	{"Corsair", []string{"corsair"}},
	{"Kingston", []string{"kingston"}},
	{"G.Skill", []string{"g.skill", "gskill"}},
	{"Crucial", []string{"crucial"}},
	{"Samsung", []string{"samsung"}},
	{"Western Digital", []string{"western digital", "wd"}},
	{"Seagate", []string{"seagate"}},
	{"Lexar", []string{"lexar"}},
	{"ADATA", []string{"adata", "xpg"}},
	{"TeamGroup", []string{"teamgroup", "t-force"}},
	{"Cooler Master", []string{"cooler master", "coolermaster"}},
	{"NZXT", []string{"nzxt"}},
	{"Lian Li", []string{"lian li", "lian-li"}},
	{"Fractal Design", []string{"fractal"}},
	{"Phanteks", []string{"phanteks"}},
	{"be quiet!", []string{"be quiet"}},
	{"Noctua", []string{"noctua"}},
	{"DeepCool", []string{"deepcool"}},
	{"Arctic", []string{"arctic"}},
	{"Thermaltake", []string{"thermaltake"}},
	{"Seasonic", []string{"seasonic"}},
	{"Redragon", []string{"redragon"}},
	{"Rise Mode", []string{"rise mode"}},
	{"Intel", []string{"intel", "core i3", "core i5", "core i7", "core i9", "core ultra", "arc"}},
	{"AMD", []string{"amd", "ryzen", "radeon", "rx"}},
	{"NVIDIA", []string{"nvidia", "geforce", "rtx", "gtx"}},
}

// InferBrand 根据名称推断品牌，无法推断返回空串
func InferBrand(name string) string {
	folded := " " + strings.NewReplacer("(", " ", ")", " ", ",", " ", "/", " ").Replace(preference.Fold(name)) + " "
	for _, kb := range knownBrands {
		for _, tok := range kb.tokens {
			if containsWord(folded, tok) {
				return kb.brand
			}
		}
	}
	return ""
}

// containsWord tok 必须以空白为边界，避免 "rx" 命中 "xrx"
func containsWord(padded, tok string) bool {
	for i := 0; ; {
		idx := strings.Index(padded[i:], tok)
		if idx < 0 {
			return false
		}
		start := i + idx
		end := start + len(tok)
		if padded[start-1] == ' ' && (end >= len(padded) || padded[end] == ' ' || isDigit(padded[end])) {
			return true
		}
		i = start + 1
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
