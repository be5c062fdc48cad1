// Package cache 提供 Redis 缓存操作的封装
// 处理会话快照、轮次锁、JWT 黑名单和跨实例事件广播等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pcbuild/internal/config"
	"pcbuild/internal/engine"
)

// eventsChannel 所有实例订阅的事件频道
const eventsChannel = "pcbuild:events"

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client      *redis.Client // Redis 客户端实例
	snapshotTTL time.Duration
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: Redis 连接配置
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username, // 托管 Redis 可能需要用户名
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, snapshotTTL: ttl}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 检查 Redis 连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== 会话快照 ====================
// 数据库是最终来源，这里只缓存活跃会话，避免每轮都重建消息历史

func snapshotKey(id string) string {
	return "conversation:" + id + ":snapshot"
}

// LoadSnapshot 读取会话快照，不存在返回 nil
func (c *RedisCache) LoadSnapshot(ctx context.Context, id string) (*engine.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 损坏的缓存直接丢弃，调用方会从数据库重建
		_ = c.client.Del(ctx, snapshotKey(id)).Err()
		return nil, nil
	}
	return &snap, nil
}

// SaveSnapshot 写入会话快照，每次写入刷新过期时间
func (c *RedisCache) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(snap.ID), data, c.snapshotTTL).Err()
}

// DeleteSnapshot 删除会话快照
func (c *RedisCache) DeleteSnapshot(ctx context.Context, id string) error {
	return c.client.Del(ctx, snapshotKey(id)).Err()
}

// ==================== 轮次锁 ====================
// 多实例部署时，同一会话的轮次可能落到不同实例上
// SETNX 保证同一时刻只有一个实例在处理该会话
// 锁的值是持有者令牌；超时后锁可能已经被别的实例拿走，释放时必须比较令牌

// releaseTurnScript 令牌匹配才删除
var releaseTurnScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireTurn 获取轮次锁
// ok 为 false 表示另一轮正在进行
func (c *RedisCache) AcquireTurn(ctx context.Context, id string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, turnKey(id), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseTurn 释放自己持有的轮次锁
func (c *RedisCache) ReleaseTurn(ctx context.Context, id, token string) error {
	return releaseTurnScript.Run(ctx, c.client, []string{turnKey(id)}, token).Err()
}

// ==================== JWT 黑名单 ====================
// 用于实现 Token 强制失效（登出）功能

// BlacklistToken 将 Token 加入黑名单
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}
	// TTL 设置为 Token 的剩余有效期，过期后自动删除
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== Pub/Sub ====================
// 用于多服务实例间的消息广播

// Publish 发布事件到所有实例
func (c *RedisCache) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, eventsChannel, data).Err()
}

// Subscribe 订阅事件，ctx 结束时关闭订阅和返回的 channel
func (c *RedisCache) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := c.client.Subscribe(ctx, eventsChannel)
	// 等待订阅确认，确保之后发布的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
