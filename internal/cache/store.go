package cache

import (
	"context"
	"encoding/json"
	"time"

	"pcbuild/internal/engine"
)

// Event 推送给某个用户的实时事件
type Event struct {
	UserID  int64           `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Store 服务层依赖的缓存接口
// RedisCache 用于多实例部署，MemoryCache 用于单实例和测试
type Store interface {
	LoadSnapshot(ctx context.Context, id string) (*engine.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap engine.Snapshot) error
	DeleteSnapshot(ctx context.Context, id string) error

	// AcquireTurn 成功时返回持有者令牌，ReleaseTurn 只释放令牌匹配的锁
	AcquireTurn(ctx context.Context, id string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseTurn(ctx context.Context, id, token string) error

	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool

	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)

	Ping(ctx context.Context) error
	Close() error
}

func turnKey(id string) string {
	return "conversation:" + id + ":turn"
}

var (
	_ Store = (*RedisCache)(nil)
	_ Store = (*MemoryCache)(nil)
)
