package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel 默认 Gemini 模型
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini 通过 Google GenAI SDK 调用 Gemini
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建 Gemini 后端，baseURL 为空时使用官方地址
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", ErrNotConfigured)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// CompleteConversation 系统提示词作为 SystemInstruction，历史消息作为 contents
func (g *Gemini) CompleteConversation(ctx context.Context, req *Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	// Gemini 要求至少一条内容
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("Hello", genai.RoleUser))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classifyGenAI(ctx, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: model returned no content", ErrUnavailable)
	}
	return text, nil
}

func classifyGenAI(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Message)
	}
	return classifyContext(ctx, err)
}
