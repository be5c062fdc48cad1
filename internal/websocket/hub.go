package websocket

import (
	"context"
	"sync"

	"pcbuild/internal/cache"
	"pcbuild/internal/service"
	"pcbuild/pkg/logger"
)

// ChatService Hub 依赖的对话操作
type ChatService interface {
	Send(ctx context.Context, userID int64, id, text string) (*service.TurnView, error)
	ResolveConsent(ctx context.Context, userID int64, id string, grant bool, clientIP string) (*service.TurnView, error)
}

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有客户端连接
// 2. 把缓存中发布的事件推送给对应用户的所有连接
type Hub struct {
	// 客户端映射：userID -> 连接集合
	// 一个用户可能同时打开多个页面或终端
	clients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// turns 正在执行的轮次，关闭时等待它们完成
	turns sync.WaitGroup

	chat  ChatService
	store cache.Store
	log   *logger.Logger
}

// NewHub 创建 Hub 实例
func NewHub(chat ChatService, store cache.Store, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		store:      store,
		log:        log,
	}
}

// Run 启动 Hub 的主循环，ctx 结束时关闭所有连接并返回
// 应该在单独的 goroutine 中运行
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	events, err := h.store.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.log.Debug("websocket client registered", "user_id", client.userID, "connections", len(set))

		case client := <-h.unregister:
			h.remove(client)

		case ev, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			h.deliver(ev)
		}
	}
}

// Register 注册客户端；Hub 已停止时返回 false
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Wait 等待正在执行的轮次完成
func (h *Hub) Wait() {
	h.turns.Wait()
}

func (h *Hub) deliver(ev cache.Event) {
	msg := NewMessage(ev.Type, ev.Payload)
	for client := range h.clients[ev.UserID] {
		client.SendMessage(msg)
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.Close()
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.log.Debug("websocket client unregistered", "user_id", c.userID)
}

func (h *Hub) closeAll() {
	for userID, set := range h.clients {
		for c := range set {
			c.Close()
		}
		delete(h.clients, userID)
	}
}
