package model

import (
	"time"

	"gorm.io/datatypes"
)

// Build 保存的装机配置单
// 对应数据库表 builds
// 配件列表以完整快照保存，目录变化不影响已保存的配置单
type Build struct {
	// ID 配置单唯一标识（UUID）
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// UserID 所属用户ID
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// ConversationID 生成该配置单的会话
	ConversationID string `gorm:"size:36;index" json:"conversation_id"`

	// Name 配置单名称，用户可修改
	Name string `gorm:"size:100;not null" json:"name"`

	// Components 选中的配件（JSON 数组）
	Components datatypes.JSON `gorm:"type:json" json:"components"`

	// TotalPrice 总价
	TotalPrice float64 `gorm:"not null;default:0" json:"total_price"`

	// Record 生成时的需求记录
	Record datatypes.JSON `gorm:"type:json" json:"record"`

	// Justification 模型给出的选择理由
	Justification string `gorm:"type:text" json:"justification"`

	// Warnings 兼容性警告（JSON 数组）
	Warnings datatypes.JSON `gorm:"type:json" json:"warnings"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Build) TableName() string {
	return "builds"
}
