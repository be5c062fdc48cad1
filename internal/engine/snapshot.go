package engine

import (
	"time"

	"pcbuild/internal/build"
	"pcbuild/internal/preference"
)

// State 会话状态
type State string

const (
	StateCollecting          State = "collecting"
	StateAwaitingSideChannel State = "awaiting_side_channel"
	StateFinalizing          State = "finalizing"
	StateComplete            State = "complete"
	StateFailed              State = "failed"
)

// Closed 终止状态
func (s State) Closed() bool {
	return s == StateComplete || s == StateFailed
}

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message 一条对话消息，创建后不再修改
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot 会话的完整状态，可以序列化后缓存或持久化
type Snapshot struct {
	ID              string            `json:"id"`
	State           State             `json:"state"`
	Record          preference.Record `json:"record"`
	Messages        []Message         `json:"messages"`
	ConsentResolved bool              `json:"consentResolved"`
	PendingAction   string            `json:"pendingAction,omitempty"`
	Build           *build.Build      `json:"build,omitempty"`
	FailureReason   string            `json:"failureReason,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// clone 复制切片，调用方拿到的快照不会和会话共享底层数组
func (s Snapshot) clone() Snapshot {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.Build != nil {
		b := *s.Build
		b.Components = append(b.Components[:0:0], s.Build.Components...)
		b.Warnings = append(b.Warnings[:0:0], s.Build.Warnings...)
		out.Build = &b
	}
	return out
}
