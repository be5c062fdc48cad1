package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"pcbuild/internal/catalog"
	"pcbuild/internal/service"
)

// --- 认证 ---

// Login 使用用户名密码登录，成功后保存凭证
func (c *Client) Login(ctx context.Context, username, password string) (*service.LoginResponse, error) {
	var out service.LoginResponse
	req := service.LoginRequest{Username: username, Password: password}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", req, &out, false); err != nil {
		return nil, err
	}
	c.SetTokens(Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
	return &out, nil
}

// Register 注册新账号
func (c *Client) Register(ctx context.Context, req *service.RegisterRequest) (*service.RegisterResponse, error) {
	var out service.RegisterResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/register", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout 让服务器吊销当前访问令牌，并清空本地凭证
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, true)
	c.SetTokens(Tokens{})
	return err
}

// refresh 用刷新令牌换新的访问令牌
func (c *Client) refresh(ctx context.Context) error {
	current := c.Tokens()
	var out service.RefreshTokenResponse
	body := map[string]string{"refresh_token": current.RefreshToken}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/refresh", body, &out, false); err != nil {
		return err
	}

	updated := Tokens{AccessToken: out.AccessToken, RefreshToken: current.RefreshToken}
	c.SetTokens(updated)
	if c.onRefresh != nil {
		c.onRefresh(updated)
	}
	return nil
}

// Profile 当前用户信息
func (c *Client) Profile(ctx context.Context) (*service.ProfileView, error) {
	var out service.ProfileView
	if err := c.get(ctx, "/api/v1/users/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile 修改邮箱或默认预算，字段为 nil 表示不修改
func (c *Client) UpdateProfile(ctx context.Context, req *service.UpdateProfileRequest) (*service.ProfileView, error) {
	var out service.ProfileView
	if err := c.put(ctx, "/api/v1/users/me", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword 修改密码
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	req := service.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	return c.put(ctx, "/api/v1/users/me/password", req, nil)
}

// --- 对话 ---

// StartConversation 开始新的对话；fromBuildID 不为空时以已保存的配置单为起点
func (c *Client) StartConversation(ctx context.Context, fromBuildID string) (*service.ConversationView, error) {
	var out service.ConversationView
	var body interface{}
	if fromBuildID != "" {
		body = service.StartRequest{FromBuildID: fromBuildID}
	}
	if err := c.post(ctx, "/api/v1/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversation 获取对话详情
func (c *Client) Conversation(ctx context.Context, id string) (*service.ConversationView, error) {
	var out service.ConversationView
	if err := c.get(ctx, "/api/v1/conversations/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversations 分页列出对话
func (c *Client) Conversations(ctx context.Context, page, size int) (*service.ConversationListResponse, error) {
	var out service.ConversationListResponse
	if err := c.get(ctx, "/api/v1/conversations"+pageQuery(page, size), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation 删除对话
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/conversations/"+url.PathEscape(id))
}

// Send 发送一条消息
// 轮次失败时返回的 TurnView 仍然有效（带系统提示），错误为 *APIError
func (c *Client) Send(ctx context.Context, id, content string) (*service.TurnView, error) {
	return c.turn(ctx, "/api/v1/conversations/"+url.PathEscape(id)+"/messages", map[string]string{"content": content})
}

// ResolveConsent 回答位置授权请求
func (c *Client) ResolveConsent(ctx context.Context, id string, grant bool) (*service.TurnView, error) {
	return c.turn(ctx, "/api/v1/conversations/"+url.PathEscape(id)+"/consent", map[string]bool{"grant": grant})
}

func (c *Client) turn(ctx context.Context, path string, body interface{}) (*service.TurnView, error) {
	var out service.TurnView
	err := c.post(ctx, path, body, &out)
	if out.ConversationID == "" {
		if err == nil {
			err = fmt.Errorf("empty turn response")
		}
		return nil, err
	}
	return &out, err
}

// SaveBuild 保存对话当前的配置单
func (c *Client) SaveBuild(ctx context.Context, conversationID, name string) (*service.BuildView, error) {
	var out service.BuildView
	var body interface{}
	if name != "" {
		body = map[string]string{"name": name}
	}
	if err := c.post(ctx, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/build", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- 配置单 ---

// Builds 分页列出已保存的配置单
func (c *Client) Builds(ctx context.Context, page, size int) (*service.BuildListResponse, error) {
	var out service.BuildListResponse
	if err := c.get(ctx, "/api/v1/builds"+pageQuery(page, size), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Build 获取配置单详情
func (c *Client) Build(ctx context.Context, id string) (*service.BuildView, error) {
	var out service.BuildView
	if err := c.get(ctx, "/api/v1/builds/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameBuild 重命名配置单
func (c *Client) RenameBuild(ctx context.Context, id, name string) (*service.BuildView, error) {
	var out service.BuildView
	if err := c.patch(ctx, "/api/v1/builds/"+url.PathEscape(id), map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBuild 删除配置单
func (c *Client) DeleteBuild(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/builds/"+url.PathEscape(id))
}

// --- 目录 ---

// CatalogPreview 预览某个预算下的候选配件
func (c *Client) CatalogPreview(ctx context.Context, budget string) (*service.CatalogPreview, error) {
	var out service.CatalogPreview
	path := "/api/v1/catalog/preview"
	if budget != "" {
		path += "?budget=" + url.QueryEscape(budget)
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	if out.Components == nil {
		out.Components = []catalog.Summary{}
	}
	return &out, nil
}

func pageQuery(page, size int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("page_size", strconv.Itoa(size))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// HealthStatus 服务器健康检查结果
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health 检查服务器状态；健康检查接口不使用统一响应结构
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &out, nil
}
