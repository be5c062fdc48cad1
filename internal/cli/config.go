package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultServerURL 未配置时使用的服务器地址
const defaultServerURL = "http://localhost:8080"

// Settings 命令行客户端配置，保存在 ~/.pcbuild/config.yaml
type Settings struct {
	Server  ServerSettings  `mapstructure:"server"`
	Account AccountSettings `mapstructure:"account"`
	Chat    ChatSettings    `mapstructure:"chat"`
}

// ServerSettings 服务器配置
type ServerSettings struct {
	URL            string        `mapstructure:"url"`             // HTTP API 地址
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单个请求超时，对话轮次可能较慢
}

// AccountSettings 登录凭证
type AccountSettings struct {
	Username     string `mapstructure:"username"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// ChatSettings 对话相关设置
type ChatSettings struct {
	LastConversation string `mapstructure:"last_conversation"` // 上次的对话，用于 chat --resume
	Live             bool   `mapstructure:"live"`              // 是否同步其他设备上的对话轮次
}

// configStore 读写配置文件
type configStore struct {
	v    *viper.Viper
	path string
	cfg  Settings
}

// loadConfig 读取配置目录中的配置，不存在时使用默认值
// dir 为空时使用 ~/.pcbuild
func loadConfig(dir string) (*configStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		dir = filepath.Join(home, ".pcbuild")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	path := filepath.Join(dir, "config.yaml")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// 环境变量覆盖，例如 PCBUILD_SERVER_URL
	v.SetEnvPrefix("PCBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", defaultServerURL)
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("account.username", "")
	v.SetDefault("account.access_token", "")
	v.SetDefault("account.refresh_token", "")
	v.SetDefault("chat.last_conversation", "")
	v.SetDefault("chat.live", true)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	s := &configStore{v: v, path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *configStore) reload() error {
	var cfg Settings
	if err := s.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	s.cfg = cfg
	return nil
}

// Settings 当前配置
func (s *configStore) Settings() Settings {
	return s.cfg
}

// SetServerURL 临时覆盖服务器地址（--server 参数），不写入文件
func (s *configStore) SetServerURL(url string) {
	s.cfg.Server.URL = strings.TrimRight(url, "/")
}

// SaveAuth 保存登录凭证
func (s *configStore) SaveAuth(username, accessToken, refreshToken string) error {
	s.v.Set("account.username", username)
	s.v.Set("account.access_token", accessToken)
	s.v.Set("account.refresh_token", refreshToken)
	s.cfg.Account = AccountSettings{Username: username, AccessToken: accessToken, RefreshToken: refreshToken}
	return s.write()
}

// SaveAccessToken 刷新后只更新访问令牌
func (s *configStore) SaveAccessToken(accessToken string) error {
	s.v.Set("account.access_token", accessToken)
	s.cfg.Account.AccessToken = accessToken
	return s.write()
}

// SaveLastConversation 记录最近的对话
func (s *configStore) SaveLastConversation(id string) error {
	s.v.Set("chat.last_conversation", id)
	s.cfg.Chat.LastConversation = id
	return s.write()
}

// ClearAuth 清除本地凭证
func (s *configStore) ClearAuth() error {
	s.v.Set("account.access_token", "")
	s.v.Set("account.refresh_token", "")
	s.v.Set("chat.last_conversation", "")
	s.cfg.Account.AccessToken = ""
	s.cfg.Account.RefreshToken = ""
	s.cfg.Chat.LastConversation = ""
	return s.write()
}

// LoggedIn 是否保存了凭证
func (s *configStore) LoggedIn() bool {
	return s.cfg.Account.AccessToken != ""
}

func (s *configStore) write() error {
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	// 配置中包含令牌，只允许当前用户读取
	return os.Chmod(s.path, 0o600)
}
