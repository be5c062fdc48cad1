package catalog

import (
	"context"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"pcbuild/internal/model"
	"pcbuild/pkg/logger"
)

// Snapshot 加载后的只读目录
// 加载完成后不再修改，多个会话可以并发读取
type Snapshot struct {
	items []model.Component
	byID  map[string]model.Component
	opts  Options
}

func newSnapshot(items []model.Component, opts Options) *Snapshot {
	s := &Snapshot{
		items: make([]model.Component, 0, len(items)),
		byID:  make(map[string]model.Component, len(items)),
		opts:  opts,
	}
	for _, c := range items {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || c.Price < 0 || math.IsNaN(c.Price) {
			continue
		}
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		c.Category = NormalizeCategory(c.Category)
		if c.Brand == nil || *c.Brand == "" {
			if b := InferBrand(c.Name); b != "" {
				c.Brand = &b
			}
		}
		s.items = append(s.items, c)
		s.byID[c.ID] = c
	}
	return s
}

// All 返回目录副本
func (s *Snapshot) All() []model.Component {
	out := make([]model.Component, len(s.items))
	copy(out, s.items)
	return out
}

// Len 目录大小
func (s *Snapshot) Len() int {
	return len(s.items)
}

// Lookup 按 ID 查找
func (s *Snapshot) Lookup(id string) (model.Component, bool) {
	c, ok := s.byID[strings.TrimSpace(id)]
	return c, ok
}

// Candidates 当前预算下的候选集
func (s *Snapshot) Candidates(budget float64) []model.Component {
	return Filter(s.items, budget, s.opts)
}

// Cache 应用级目录缓存
// 第一次使用时从来源加载，并发的首次请求只会触发一次加载；
// 加载失败不会被缓存，下一次调用会重试
type Cache struct {
	source Source
	opts   Options
	log    *logger.Logger

	group singleflight.Group
	mu    sync.RWMutex
	snap  *Snapshot
}

// NewCache 创建目录缓存
func NewCache(source Source, opts Options, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache{source: source, opts: opts.withDefaults(), log: log}
}

// Load 返回目录快照
func (c *Cache) Load(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		c.mu.RLock()
		existing := c.snap
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		items, err := c.source.All(ctx)
		if err != nil {
			c.log.Error("catalog load failed", "error", err)
			return nil, err
		}
		loaded := newSnapshot(items, c.opts)
		c.log.Info("catalog loaded", "components", loaded.Len(), "skipped", len(items)-loaded.Len())

		c.mu.Lock()
		c.snap = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate 丢弃缓存，下次 Load 重新加载（例如导入新目录之后）
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}
