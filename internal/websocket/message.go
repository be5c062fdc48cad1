// Package websocket 提供 WebSocket 通信功能
// 客户端通过一条连接发送对话消息，并实时收到自己所有对话的轮次结果
package websocket

import (
	"encoding/json"
	"time"

	"pcbuild/internal/service"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypeHeartbeat   = "heartbeat"    // 心跳
	TypeChatSend    = "chat:send"    // 发送一条对话消息
	TypeChatConsent = "chat:consent" // 回答位置授权请求

	// 服务端 → 客户端
	TypeThinking = "conversation:thinking" // 已收到消息，模型处理中
	TypeTurn     = service.EventTurn       // 一轮对话的结果（所有连接都会收到）

	// 通用
	TypeError = "error" // 错误消息
	TypePong  = "pong"  // 心跳响应
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string          `json:"type"`                 // 消息类型
	Payload   json.RawMessage `json:"payload,omitempty"`    // 消息内容
	Timestamp int64           `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string          `json:"message_id,omitempty"` // 消息ID，用于关联请求和响应
}

// NewMessage 创建新消息；payload 为 nil 时不带内容
func NewMessage(msgType string, payload interface{}) *Message {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		if raw, ok := payload.(json.RawMessage); ok {
			msg.Payload = raw
		} else if data, err := json.Marshal(payload); err == nil {
			msg.Payload = data
		}
	}
	return msg
}

// NewMessageWithID 创建带消息ID的新消息
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	msg := NewMessage(msgType, payload)
	msg.MessageID = messageID
	return msg
}

// ==================== Payload 类型定义 ====================

// ChatSendPayload 发送消息
type ChatSendPayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ChatConsentPayload 位置授权
type ChatConsentPayload struct {
	ConversationID string `json:"conversation_id"`
	Grant          bool   `json:"grant"`
}

// ThinkingPayload 模型处理中
type ThinkingPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code           int    `json:"code"`                      // 业务错误码，与 HTTP 接口一致
	Message        string `json:"message"`                   // 错误信息
	ConversationID string `json:"conversation_id,omitempty"` // 相关的对话
}
