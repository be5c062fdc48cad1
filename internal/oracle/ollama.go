package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// DefaultOllamaModel 默认本地模型
const DefaultOllamaModel = "llama3.1"

// Ollama 调用本地 Ollama 服务
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama 创建 Ollama 后端
// host 为空时使用 OLLAMA_HOST 环境变量
func NewOllama(host, model string, timeout time.Duration) (*Ollama, error) {
	if model == "" {
		model = DefaultOllamaModel
	}

	var client *ollama.Client
	if host == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		client = ollama.NewClient(base, &http.Client{Timeout: timeout})
	}
	return &Ollama{client: client, model: model}, nil
}

// CompleteConversation 非流式调用，要求输出 JSON
func (o *Ollama) CompleteConversation(ctx context.Context, req *Request) (string, error) {
	messages := make([]ollama.Message, 0, len(req.History)+1)
	messages = append(messages, ollama.Message{Role: "system", Content: req.SystemPrompt()})
	for _, m := range req.History {
		messages = append(messages, ollama.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Format:   json.RawMessage(`"json"`),
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	}

	var content strings.Builder
	err := o.client.Chat(ctx, chatReq, func(res ollama.ChatResponse) error {
		content.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", classifyOllama(ctx, err)
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return "", fmt.Errorf("%w: model returned no content", ErrUnavailable)
	}
	return text, nil
}

func classifyOllama(ctx context.Context, err error) error {
	var statusErr ollama.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, statusErr.ErrorMessage)
	}
	return classifyContext(ctx, err)
}
