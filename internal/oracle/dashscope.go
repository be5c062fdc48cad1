package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DashScope API Endpoint
	QwenEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	// Model Name
	QwenModel = "qwen-plus"
)

// DashScope 通过阿里云 DashScope 调用 Qwen
type DashScope struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewDashScope 创建 DashScope 后端
func NewDashScope(apiKey, model, endpoint string, timeout time.Duration) *DashScope {
	if model == "" {
		model = QwenModel
	}
	if endpoint == "" {
		endpoint = QwenEndpoint
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &DashScope{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// DashScopeRequest 阿里云 API 请求结构
type DashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []Message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"` // "message"
	} `json:"parameters"`
}

// DashScopeResponse 阿里云 API 响应结构
type DashScopeResponse struct {
	Output struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompleteConversation 发送完整对话历史，返回模型原始文本
func (d *DashScope) CompleteConversation(ctx context.Context, req *Request) (string, error) {
	if d.apiKey == "" {
		return "", fmt.Errorf("%w: missing DashScope API key", ErrNotConfigured)
	}

	// 1. 构造请求 Body：系统提示词 + 历史消息
	dashReq := DashScopeRequest{Model: d.model}
	dashReq.Input.Messages = make([]Message, 0, len(req.History)+1)
	dashReq.Input.Messages = append(dashReq.Input.Messages, Message{Role: "system", Content: req.SystemPrompt()})
	dashReq.Input.Messages = append(dashReq.Input.Messages, req.History...)
	dashReq.Parameters.ResultFormat = "message"

	jsonData, err := json.Marshal(dashReq)
	if err != nil {
		return "", err
	}

	// 2. 发送 HTTP 请求
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", classifyContext(ctx, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyContext(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, truncate(string(bodyBytes), 300))
	}

	// 3. 解析响应
	var dashResp DashScopeResponse
	if err := json.Unmarshal(bodyBytes, &dashResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
	}

	if dashResp.Code != "" {
		return "", classifyCode(dashResp.Code, dashResp.Message)
	}

	if len(dashResp.Output.Choices) == 0 {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, errors.New("model returned no content"))
	}

	return strings.TrimSpace(dashResp.Output.Choices[0].Message.Content), nil
}

// classifyCode DashScope 在 200 响应里也可能带错误码
func classifyCode(code, msg string) error {
	switch {
	case strings.Contains(code, "Throttling"):
		return fmt.Errorf("%w: %s - %s", ErrRateLimited, code, msg)
	case code == "InvalidApiKey":
		return fmt.Errorf("%w: %s - %s", ErrNotConfigured, code, msg)
	}
	return fmt.Errorf("%w: %s - %s", ErrUnavailable, code, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
