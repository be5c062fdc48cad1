package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pcbuild/internal/handler"
	"pcbuild/pkg/response"
)

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB）
	maxMessageSize = 64 * 1024
)

// Client 表示一个 WebSocket 客户端连接
type Client struct {
	hub    *Hub            // 所属的 Hub
	conn   *websocket.Conn // WebSocket 连接
	send   chan []byte     // 发送消息的通道
	userID int64           // 用户ID
	ip     string          // 客户端 IP，用于位置补全

	mu     sync.Mutex // 保护 send 通道的关闭
	closed bool
}

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, ip string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
		ip:     ip,
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 负责从 WebSocket 读取消息并分发处理
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", response.CodeBadRequest, "malformed message", "")
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 负责从 send 通道读取消息并写入 WebSocket，同时定时发送 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道已关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 向客户端发送消息
// 非阻塞：缓冲区满时丢弃，客户端可以通过 HTTP 接口重新获取对话
func (c *Client) SendMessage(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.log.Warn("websocket send buffer full, dropping message", "user_id", c.userID, "type", msg.Type)
		return false
	}
}

// Close 关闭发送通道，WritePump 随后发送关闭帧并退出
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeHeartbeat:
		c.SendMessage(NewMessageWithID(TypePong, nil, msg.MessageID))

	case TypeChatSend:
		var p ChatSendPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ConversationID == "" || strings.TrimSpace(p.Content) == "" {
			c.sendError(msg.MessageID, response.CodeBadRequest, "conversation_id and content are required", p.ConversationID)
			return
		}
		c.runTurn(msg.MessageID, p.ConversationID, func(ctx context.Context) error {
			_, err := c.hub.chat.Send(ctx, c.userID, p.ConversationID, p.Content)
			return err
		})

	case TypeChatConsent:
		var p ChatConsentPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ConversationID == "" {
			c.sendError(msg.MessageID, response.CodeBadRequest, "conversation_id is required", p.ConversationID)
			return
		}
		c.runTurn(msg.MessageID, p.ConversationID, func(ctx context.Context) error {
			_, err := c.hub.chat.ResolveConsent(ctx, c.userID, p.ConversationID, p.Grant, c.ip)
			return err
		})

	default:
		c.sendError(msg.MessageID, response.CodeBadRequest, "unknown message type: "+msg.Type, "")
	}
}

// runTurn 在单独的 goroutine 中执行一轮，避免阻塞读取（Pong 也在读取中处理）
// 成功的结果通过 Hub 的事件推送；这里只回复错误
func (c *Client) runTurn(messageID, conversationID string, run func(ctx context.Context) error) {
	c.SendMessage(NewMessageWithID(TypeThinking, &ThinkingPayload{ConversationID: conversationID}, messageID))

	c.hub.turns.Add(1)
	go func() {
		defer c.hub.turns.Done()
		// 连接断开后这一轮仍然完成，结果会写入数据库
		if err := run(context.Background()); err != nil {
			_, code, message, ok := handler.Classify(err)
			if !ok {
				c.hub.log.Error("websocket turn failed", "user_id", c.userID, "conversation", conversationID, "error", err)
			}
			c.sendError(messageID, code, message, conversationID)
		}
	}()
}

func (c *Client) sendError(messageID string, code int, message, conversationID string) {
	c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{
		Code:           code,
		Message:        message,
		ConversationID: conversationID,
	}, messageID))
}
