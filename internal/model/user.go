// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// UserStatus 账号状态
const (
	UserStatusDisabled int8 = 0 // 禁用
	UserStatusActive   int8 = 1 // 正常
)

// User 用户模型
// 对应数据库表 users，保存的配置单和对话都按用户隔离
type User struct {
	// ID 用户唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Username 用户名，用于登录，全局唯一
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`

	// PasswordHash 密码的 bcrypt 哈希值，不参与序列化
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// Email 邮箱，可选
	Email *string `gorm:"size:100;uniqueIndex" json:"email,omitempty"`

	// Status 账号状态
	Status int8 `gorm:"default:1" json:"status"`

	// DefaultBudget 新对话的默认预算，为空时从预算问题开始
	DefaultBudget *float64 `json:"default_budget,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Builds 用户保存的配置单（一对多关系）
	Builds []Build `gorm:"foreignKey:UserID" json:"builds,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Tables 需要迁移的所有表
func Tables() []interface{} {
	return []interface{}{
		&User{},
		&Component{},
		&Conversation{},
		&Message{},
		&Build{},
	}
}
