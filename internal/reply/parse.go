package reply

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 模型常见错误：在同级字段之间提前关闭了对象，例如 `"a": 1}, "b": 2`
var earlyCloseBeforeComma = regexp.MustCompile(`\}\s*,`)

// Parse 从模型输出中提取回复
// 去掉代码块标记，截取第一个 '{' 到最后一个 '}'，严格解析；
// 失败后做一次修复再解析一次，仍失败返回 nil
func Parse(raw string) *Reply {
	payload, ok := extract(raw)
	if !ok {
		return nil
	}

	if r, err := decode(payload); err == nil {
		return r
	}

	repaired := earlyCloseBeforeComma.ReplaceAllString(payload, ",")
	if repaired == payload {
		return nil
	}
	r, err := decode(repaired)
	if err != nil {
		return nil
	}
	return r
}

func decode(payload string) (*Reply, error) {
	var r Reply
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// extract 返回最外层 JSON 对象的文本
func extract(raw string) (string, bool) {
	text := stripFence(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// stripFence 去掉 ```json ... ``` 代码块标记
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 语言标记，如 json
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{}") {
			s = s[nl+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
