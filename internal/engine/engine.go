// Package engine 需求收集的对话状态机
//
// 每一轮: 缩减目录 -> 调用模型 -> 解析/修复回复 -> 合并需求记录 -> 更新配置单。
// 同一个会话的轮次严格串行；失败的轮次不会修改需求记录。
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pcbuild/internal/catalog"
	"pcbuild/internal/oracle"
	"pcbuild/internal/preference"
	"pcbuild/pkg/logger"
)

// DefaultTurnTimeout 单次模型调用的默认超时
const DefaultTurnTimeout = 60 * time.Second

// 引擎错误
var (
	// ErrBusy 上一轮还没有结束
	ErrBusy = errors.New("conversation is busy")
	// ErrClosed 会话已完成或已失败
	ErrClosed = errors.New("conversation is closed")
	// ErrAwaitingConsent 需要先处理位置授权
	ErrAwaitingConsent = errors.New("conversation is waiting for location consent")
	// ErrNoPendingConsent 当前没有待处理的授权请求
	ErrNoPendingConsent = errors.New("no pending consent request")
	// ErrEmptyInput 用户输入为空
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidReply 模型返回的数据无法解析或缺少必需字段
	ErrInvalidReply = errors.New("model returned invalid data")
	// ErrCatalogUnavailable 目录加载失败
	ErrCatalogUnavailable = errors.New("component catalog unavailable")
)

// Catalog 目录来源，由 catalog.Cache 实现
type Catalog interface {
	Load(ctx context.Context) (*catalog.Snapshot, error)
}

// Enricher 位置/气候补全，由 enrich.Service 实现
type Enricher interface {
	Enrich(ctx context.Context, ip string) *preference.Environment
}

// Engine 所有会话共享的依赖
type Engine struct {
	oracle   oracle.Oracle
	catalog  Catalog
	enricher Enricher
	log      *logger.Logger
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// Option 引擎选项
type Option func(*Engine)

// WithEnricher 设置位置补全，未设置时授权后不做补全
func WithEnricher(en Enricher) Option {
	return func(e *Engine) { e.enricher = en }
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTimeout 设置模型调用超时
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 设置消息 ID 生成器（测试用）
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New 创建引擎
func New(o oracle.Oracle, c Catalog, opts ...Option) *Engine {
	e := &Engine{
		oracle:  o,
		catalog: c,
		log:     logger.NewNop(),
		timeout: DefaultTurnTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession 开始一个新的会话
// prefill 不为空时以已保存配置单的需求记录作为初始记录
func (e *Engine) NewSession(id string, prefill *preference.Record) *Session {
	snap := Snapshot{
		ID:        id,
		State:     StateCollecting,
		Messages:  []Message{},
		UpdatedAt: e.now(),
	}
	if prefill != nil {
		snap.Record = preference.Merge(preference.Record{}, *prefill)
		snap.ConsentResolved = snap.Record.Environment.LocationResolved()
	}
	return &Session{engine: e, snap: snap}
}

// Restore 从快照恢复会话
func (e *Engine) Restore(snap Snapshot) *Session {
	if snap.State == "" {
		snap.State = StateCollecting
	}
	if snap.Messages == nil {
		snap.Messages = []Message{}
	}
	return &Session{engine: e, snap: snap}
}
