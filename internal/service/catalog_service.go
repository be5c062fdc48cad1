package service

import (
	"context"
	"errors"

	"pcbuild/internal/catalog"
	"pcbuild/internal/model"
	"pcbuild/internal/preference"
)

// ErrComponentNotFound 配件不存在
var ErrComponentNotFound = errors.New("component not found")

// CatalogService 配件目录查询
type CatalogService struct {
	cache *catalog.Cache
}

// NewCatalogService 创建 CatalogService 实例
func NewCatalogService(cache *catalog.Cache) *CatalogService {
	return &CatalogService{cache: cache}
}

// CatalogPreview 某个预算下模型会看到的候选集
type CatalogPreview struct {
	Budget     float64           `json:"budget"`
	Total      int               `json:"total"`
	Components []catalog.Summary `json:"components"`
}

// Preview 预览候选集，budget 为空或无法解析时按没有预算处理
func (s *CatalogService) Preview(ctx context.Context, budget string) (*CatalogPreview, error) {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	var value float64
	if v, ok := preference.ParseAmount(budget); ok && v > 0 {
		value = v
	}
	return &CatalogPreview{
		Budget:     value,
		Total:      snap.Len(),
		Components: catalog.Summaries(snap.Candidates(value)),
	}, nil
}

// Component 按 ID 获取配件
func (s *CatalogService) Component(ctx context.Context, id string) (*model.Component, error) {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := snap.Lookup(id)
	if !ok {
		return nil, ErrComponentNotFound
	}
	return &c, nil
}

// Reload 丢弃目录缓存并重新加载
func (s *CatalogService) Reload(ctx context.Context) (int, error) {
	s.cache.Invalidate()
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}
