// Package reply 把模型返回的自由文本解析为结构化回复
// 模型输出不可靠：可能包在代码块里、前后带说明文字、或者 JSON 本身有格式错误
package reply

import (
	"bytes"
	"encoding/json"
	"strings"

	"pcbuild/internal/preference"
)

// 副通道动作
const (
	ActionNone            = ""
	ActionRequestLocation = "request_location"
)

// Reply 模型一轮回复
type Reply struct {
	Text                  string             `json:"aiResponseText"`
	Preferences           *preference.Record `json:"preferences"`
	Complete              Flag               `json:"complete"`
	Action                string             `json:"action,omitempty"`
	ComponentIDs          IDList             `json:"recommendedComponentIds,omitempty"`
	Justification         string             `json:"justification,omitempty"`
	TotalPrice            preference.Amount  `json:"totalPrice,omitzero"`
	CompatibilityWarnings []string           `json:"compatibilityWarnings,omitempty"`
}

// UnmarshalJSON 兼容旧字段名 anamneseComplete / componentIds
func (r *Reply) UnmarshalJSON(data []byte) error {
	type plain Reply
	aux := struct {
		*plain
		AnamneseComplete *Flag  `json:"anamneseComplete"`
		LegacyIDs        IDList `json:"componentIds"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.AnamneseComplete != nil && !bool(r.Complete) {
		r.Complete = *aux.AnamneseComplete
	}
	if len(r.ComponentIDs) == 0 && len(aux.LegacyIDs) > 0 {
		r.ComponentIDs = aux.LegacyIDs
	}
	r.Action = normalizeAction(r.Action)
	return nil
}

// Validate 检查必需的顶层字段
func (r *Reply) Validate() bool {
	return r != nil && strings.TrimSpace(r.Text) != "" && r.Preferences != nil
}

// RequestsLocation 模型是否要求位置授权
func (r *Reply) RequestsLocation() bool {
	return r.Action == ActionRequestLocation
}

func normalizeAction(a string) string {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "", "none", "null":
		return ActionNone
	case "request_location", "request_location_permission", "requestlocation", "location":
		return ActionRequestLocation
	}
	return strings.ToLower(strings.TrimSpace(a))
}

// Flag 宽松的布尔值，接受 true/"true"/"sim"/1 等写法
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	switch preference.Fold(s) {
	case "true", "1", "yes", "sim", "y":
		*f = true
	default:
		*f = false
	}
	return nil
}

// IDList 组件 ID 列表，模型有时返回数字
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		var s string
		if len(item) > 0 && item[0] == '"' {
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
		} else {
			s = string(item)
		}
		if s = strings.TrimSpace(s); s != "" && s != "null" {
			ids = append(ids, s)
		}
	}
	*l = ids
	return nil
}
