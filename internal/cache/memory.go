package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"pcbuild/internal/engine"
)

type entry struct {
	data     []byte
	expireAt time.Time // 零值表示不过期
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryCache 进程内实现，语义与 RedisCache 相同
// 快照以 JSON 保存，读出的快照不会与缓存共享内存
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]entry
	subscribers map[chan Event]struct{}
	snapshotTTL time.Duration
	now         func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(snapshotTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string]entry),
		subscribers: make(map[chan Event]struct{}),
		snapshotTTL: snapshotTTL,
		now:         time.Now,
	}
}

func (c *MemoryCache) get(key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

func (c *MemoryCache) set(key string, data []byte, ttl time.Duration) {
	e := entry{data: data}
	if ttl > 0 {
		e.expireAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// LoadSnapshot 读取会话快照，不存在返回 nil
func (c *MemoryCache) LoadSnapshot(ctx context.Context, id string) (*engine.Snapshot, error) {
	c.mu.Lock()
	data, ok := c.get(snapshotKey(id))
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot 写入会话快照
func (c *MemoryCache) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.set(snapshotKey(snap.ID), data, c.snapshotTTL)
	c.mu.Unlock()
	return nil
}

// DeleteSnapshot 删除会话快照
func (c *MemoryCache) DeleteSnapshot(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.entries, snapshotKey(id))
	c.mu.Unlock()
	return nil
}

// AcquireTurn 获取轮次锁
func (c *MemoryCache) AcquireTurn(ctx context.Context, id string, ttl time.Duration) (string, bool, error) {
	key := turnKey(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.get(key); held {
		return "", false, nil
	}
	token := uuid.NewString()
	c.set(key, []byte(token), ttl)
	return token, true, nil
}

// ReleaseTurn 释放自己持有的轮次锁
func (c *MemoryCache) ReleaseTurn(ctx context.Context, id, token string) error {
	key := turnKey(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, held := c.get(key); held && string(data) == token {
		delete(c.entries, key)
	}
	return nil
}

// BlacklistToken 将 Token 加入黑名单
func (c *MemoryCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := expireAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.set("jwt:blacklist:"+tokenHash, []byte("1"), ttl)
	c.mu.Unlock()
	return nil
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
func (c *MemoryCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.get("jwt:blacklist:" + tokenHash)
	return ok
}

// Publish 投递给当前进程的所有订阅者；订阅者处理不过来时丢弃
func (c *MemoryCache) Publish(ctx context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe 订阅事件，ctx 结束时关闭返回的 channel
func (c *MemoryCache) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 64)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subscribers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch, nil
}

// Ping 总是成功
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close 无需释放资源
func (c *MemoryCache) Close() error {
	return nil
}
