package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pcbuild/internal/model"
)

// 目录来源错误
var (
	// ErrSourceAuth 来源拒绝了凭据（数据库账号、文件权限）
	ErrSourceAuth = errors.New("catalog source rejected credentials")
	// ErrSourceUnavailable 其他加载失败
	ErrSourceUnavailable = errors.New("catalog source unavailable")
)

// Source 目录来源
type Source interface {
	All(ctx context.Context) ([]model.Component, error)
}

// ComponentLister 由 repository.ComponentRepository 实现
type ComponentLister interface {
	ListAll(ctx context.Context) ([]model.Component, error)
}

// DBSource 从数据库 components 表读取目录
type DBSource struct {
	repo ComponentLister
}

// NewDBSource 创建数据库目录来源
func NewDBSource(repo ComponentLister) *DBSource {
	return &DBSource{repo: repo}
}

// All 返回全部配件
func (s *DBSource) All(ctx context.Context) ([]model.Component, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// classify 区分凭据错误和其他错误
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"),
		strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", ErrSourceAuth, err)
	}
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}

// File YAML 目录文件格式
type File struct {
	Components []model.Component `yaml:"components"`
}

// YAMLSource 从 YAML 文件读取目录
type YAMLSource struct {
	path string
}

// NewYAMLSource 创建文件目录来源
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// All 每次调用都重新读取文件，缓存由 Cache 负责
func (s *YAMLSource) All(ctx context.Context) ([]model.Component, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFile(s.path)
}

// ReadFile 解析 YAML 目录文件
func ReadFile(path string) ([]model.Component, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrSourceAuth, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceUnavailable, path, err)
	}
	return f.Components, nil
}
