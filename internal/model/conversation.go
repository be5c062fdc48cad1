// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationState 会话状态常量
// 与 engine 包中的状态一一对应
const (
	ConversationStateCollecting          = "collecting"            // 需求收集中
	ConversationStateAwaitingSideChannel = "awaiting_side_channel" // 等待用户位置授权
	ConversationStateFinalizing          = "finalizing"            // 模型已确认需求，等待配置单
	ConversationStateComplete            = "complete"              // 配置单已生成
	ConversationStateFailed              = "failed"                // 模型不可用，会话终止
)

// Conversation 装机对话模型
// 对应数据库表 conversations
// 一次对话对应一次完整的需求收集过程，完成后生成一个配置单
type Conversation struct {
	// ID 会话唯一标识（UUID）
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// UserID 所属用户ID
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// State 状态机当前状态
	State string `gorm:"size:30;default:collecting;index" json:"state"`

	// Record 累积的需求记录（JSON）
	Record datatypes.JSON `gorm:"type:json" json:"record"`

	// ConsentResolved 位置授权是否已经处理过（授权或拒绝）
	ConsentResolved bool `gorm:"default:false" json:"consent_resolved"`

	// PendingAction 模型请求的副通道动作，例如 request_location
	PendingAction string `gorm:"size:50" json:"pending_action,omitempty"`

	// FailureReason 进入 failed 状态的原因
	FailureReason string `gorm:"size:255" json:"failure_reason,omitempty"`

	// CurrentBuild 当前推荐的配置单（JSON），每轮可能被更新，完成时保存为 Build
	CurrentBuild datatypes.JSON `gorm:"type:json" json:"current_build,omitempty"`

	// BuildID 生成的配置单ID
	BuildID *string `gorm:"size:36" json:"build_id,omitempty"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 最后一轮对话时间
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`

	// Messages 会话中的所有消息（一对多关系）
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// Closed 会话是否已经不能继续对话
func (c *Conversation) Closed() bool {
	return c.State == ConversationStateComplete || c.State == ConversationStateFailed
}
