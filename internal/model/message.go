// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
	MessageRoleSystem    = "system"    // 系统提示（如错误提示），不会发送给模型
)

// Message 消息模型
// 对应数据库表 messages
// 创建后不可修改，按时间顺序组成对话历史
type Message struct {
	// ID 消息唯一标识（UUID）
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// ConversationID 所属会话ID
	ConversationID string `gorm:"size:36;index;not null" json:"conversation_id"`

	// Role 消息角色
	// user: 用户发送的消息
	// assistant: AI 助手的响应
	// system: 系统提示
	Role string `gorm:"size:20;not null" json:"role"`

	// Content 消息内容
	Content string `gorm:"type:text;not null" json:"content"`

	// Seq 在会话中的序号，同一轮的消息时间戳相同，按序号排序
	Seq int `gorm:"not null;default:0" json:"seq"`

	// CreatedAt 消息创建时间
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
