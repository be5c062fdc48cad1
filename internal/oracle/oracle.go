// Package oracle 封装对大模型的调用
// 引擎只依赖 Oracle 接口，具体后端（DashScope / Gemini / Ollama）可以替换，测试中使用确定性的桩实现
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pcbuild/internal/catalog"
)

// 错误分类
var (
	// ErrNotConfigured 没有配置凭据或凭据被拒绝，对当前会话是致命错误
	ErrNotConfigured = errors.New("oracle not configured")
	// ErrRateLimited 请求过多，稍后重试
	ErrRateLimited = errors.New("oracle rate limited")
	// ErrUnavailable 其他网络或服务错误
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrTimeout 调用超时
	ErrTimeout = errors.New("oracle call timed out")
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 对话历史中的一条消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 一次模型调用
type Request struct {
	History      []Message
	Preferences  string // 序列化后的需求记录
	Candidates   []catalog.Summary
	Instructions string
}

// SystemPrompt 把固定说明、需求记录和候选配件合成系统提示词
func (r *Request) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(r.Instructions)

	b.WriteString("\n\nCURRENT PREFERENCE RECORD (JSON):\n")
	prefs := strings.TrimSpace(r.Preferences)
	if prefs == "" {
		prefs = "{}"
	}
	b.WriteString(prefs)

	b.WriteString("\n\nAVAILABLE COMPONENTS (JSON, use only these ids):\n")
	candidates := r.Candidates
	if candidates == nil {
		candidates = []catalog.Summary{}
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		data = []byte("[]")
	}
	b.Write(data)
	return b.String()
}

// Oracle 模型调用能力
// 返回模型的原始文本，解析由调用方负责
type Oracle interface {
	CompleteConversation(ctx context.Context, req *Request) (string, error)
}

// classifyContext 把 context 错误映射为超时
func classifyContext(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// classifyStatus 根据 HTTP 状态码分类
func classifyStatus(status int, detail string) error {
	switch {
	case status == 429:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, status, detail)
	case status == 401 || status == 403:
		return fmt.Errorf("%w: status %d: %s", ErrNotConfigured, status, detail)
	}
	return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, detail)
}

// unconfigured 没有凭据时使用，每次调用都返回 ErrNotConfigured
type unconfigured struct {
	provider string
}

func (u unconfigured) CompleteConversation(ctx context.Context, req *Request) (string, error) {
	return "", fmt.Errorf("%w: missing credential for %s", ErrNotConfigured, u.provider)
}
