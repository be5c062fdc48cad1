// Package client 封装命令行客户端与服务器的交互
// Client 负责 HTTP API，Stream 负责 WebSocket 实时事件
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"pcbuild/pkg/response"
)

// APIError 服务器返回的业务错误
// 失败的对话轮次会在 Data 中带上当前状态
type APIError struct {
	Status  int
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// IsCode 判断错误是否为指定的业务错误码
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// envelope 统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Tokens 当前登录凭证
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Client API 客户端
// 访问令牌过期时自动用刷新令牌换一个新的，并重试一次
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	tokens    Tokens
	onRefresh func(Tokens)
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokens 设置登录凭证
func WithTokens(t Tokens) Option {
	return func(c *Client) { c.tokens = t }
}

// OnRefresh 访问令牌刷新后回调，用于保存到本地配置
func OnRefresh(fn func(Tokens)) Option {
	return func(c *Client) { c.onRefresh = fn }
}

// New 创建 API 客户端
// baseURL 例如 http://localhost:8080
// 对话轮次可能需要较长时间，超时由调用方的 context 控制
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 服务器地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens 返回当前凭证
func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// SetTokens 替换当前凭证
func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
}

// --- 通用请求封装 ---

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.call(ctx, http.MethodGet, path, nil, out, true)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, http.MethodPost, path, body, out, true)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, http.MethodPut, path, body, out, true)
}

func (c *Client) patch(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, http.MethodPatch, path, body, out, true)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil, true)
}

// call 发送请求并解析统一响应
// 带 Data 的错误响应会同时解析到 out 中
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = data
	}

	token := ""
	if auth {
		token = c.Tokens().AccessToken
	}
	env, status, err := c.do(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth && c.Tokens().RefreshToken != "" {
		if refreshErr := c.refresh(ctx); refreshErr == nil {
			env, status, err = c.do(ctx, method, path, payload, c.Tokens().AccessToken)
			if err != nil {
				return err
			}
		}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if env.Code != response.CodeSuccess {
		return &APIError{Status: status, Code: env.Code, Message: env.Message, Data: env.Data}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, token string) (*envelope, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	// 删除接口返回 204，没有响应体
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		if resp.StatusCode >= http.StatusBadRequest {
			return &envelope{Code: response.CodeInternalError, Message: http.StatusText(resp.StatusCode)}, resp.StatusCode, nil
		}
		return &envelope{}, resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("unexpected response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &env, resp.StatusCode, nil
}
