package preference

import "strings"

// Question 提问顺序中的一步
type Question string

const (
	QuestionNone            Question = ""
	QuestionBudget          Question = "budget"
	QuestionPurpose         Question = "purpose"
	QuestionPurposeDetail   Question = "purpose_detail"
	QuestionOwnedComponents Question = "owned_components"
	QuestionLocationConsent Question = "location_consent"
	QuestionPreferences     Question = "preferences"
)

// Purpose 用途分支
type Purpose int

const (
	PurposeOther Purpose = iota
	PurposeGaming
	PurposeWork
	PurposeCreative
)

var purposeKeywords = []struct {
	purpose  Purpose
	keywords []string
}{
	{PurposeGaming, []string{"gam", "jog", "esport", "fps"}},
	{PurposeCreative, []string{"edica", "edit", "render", "design", "criac", "creat", "criativ", "video", "3d", "modelag", "anima", "foto", "photo"}},
	{PurposeWork, []string{"trabalh", "work", "office", "escritorio", "program", "desenvolv", "develop", "estud", "study", "empresa", "business"}},
}

// ClassifyPurpose 根据用途描述判断属于哪个分支
func ClassifyPurpose(purpose string) Purpose {
	folded := Fold(purpose)
	if folded == "" {
		return PurposeOther
	}
	for _, pk := range purposeKeywords {
		for _, kw := range pk.keywords {
			if strings.Contains(folded, kw) {
				return pk.purpose
			}
		}
	}
	return PurposeOther
}

// PurposeDetailAnswered 用途对应的细分问题是否已回答
// 其他用途没有细分问题，视为已回答
func (r Record) PurposeDetailAnswered() bool {
	p := r.PCProfile
	switch ClassifyPurpose(p.Purpose) {
	case PurposeGaming:
		return p.GamingType != ""
	case PurposeWork:
		return p.WorkField != ""
	case PurposeCreative:
		return p.CreativeType != ""
	}
	return true
}

// NextQuestion 确定性的提问顺序:
// 预算 -> 主要用途 -> 用途细分 -> 已有配件 -> 位置授权（只问一次） -> 其他偏好
// 每一步的字段已存在就跳过；全部已知时返回 QuestionNone，表示可以给出最终配置并请用户确认
func NextQuestion(r Record, consentResolved bool) Question {
	switch {
	case !r.HasBudget():
		return QuestionBudget
	case r.PCProfile.Purpose == "":
		return QuestionPurpose
	case !r.PurposeDetailAnswered():
		return QuestionPurposeDetail
	case r.OwnedComponents == "":
		return QuestionOwnedComponents
	case !consentResolved && !r.Environment.LocationResolved():
		return QuestionLocationConsent
	case !r.HasPreferences():
		return QuestionPreferences
	}
	return QuestionNone
}

// Describe 用于提示词的问题说明
func (q Question) Describe(r Record) string {
	switch q {
	case QuestionBudget:
		return "Ask for the total budget for the PC (a number in the user's currency)."
	case QuestionPurpose:
		return "Ask what the PC will mainly be used for (gaming, work, creative work, general use)."
	case QuestionPurposeDetail:
		switch ClassifyPurpose(r.PCProfile.Purpose) {
		case PurposeGaming:
			return "Ask which kind of games the user plays (competitive, AAA, indie, VR) and at what resolution."
		case PurposeWork:
			return "Ask which field of work the PC is for (office, programming, data, engineering)."
		case PurposeCreative:
			return "Ask which kind of creative work (video editing, 3D, photo, design) and at what resolution."
		}
		return "Ask for more detail about the main purpose."
	case QuestionOwnedComponents:
		return "Ask whether the user already owns any components to reuse (answer may be 'none')."
	case QuestionLocationConsent:
		return "Ask permission to use the user's approximate location and climate; set action to \"request_location\"."
	case QuestionPreferences:
		return "Ask about other preferences: brands, aesthetics/RGB, case size, noise tolerance."
	}
	return "All requirements are known. Present the final build and ask the user to confirm it; set complete to true."
}
