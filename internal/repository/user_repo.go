// Package repository 提供数据访问层的实现
// 封装所有与数据库的交互操作
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"pcbuild/internal/model"
)

// UserRepository 用户数据访问层
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建 UserRepository 实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UserActivity 用户的装机记录概况
type UserActivity struct {
	Conversations     int64      `json:"conversations"`
	OpenConversations int64      `json:"open_conversations"` // 还没有结束的对话
	Builds            int64      `json:"builds"`
	LastBuildAt       *time.Time `json:"last_build_at,omitempty"`
}

// Create 创建新用户
// 用户名或邮箱重复时返回数据库的唯一约束错误
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据 ID 获取用户，未找到返回 nil
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByUsername 根据用户名获取用户，用于登录验证
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateFields 更新用户的指定字段
// 值为 nil 的字段会被清空，例如 {"email": nil}
func (r *UserRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// ExistsByUsername 检查用户名是否已存在
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ExistsByEmail 检查邮箱是否已被其他用户使用
// excludeID 为 0 时检查所有用户
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// Activity 统计用户的对话和配置单
func (r *UserRepository) Activity(ctx context.Context, userID int64) (*UserActivity, error) {
	var a UserActivity
	db := r.db.WithContext(ctx)

	if err := db.Model(&model.Conversation{}).Where("user_id = ?", userID).Count(&a.Conversations).Error; err != nil {
		return nil, err
	}
	closed := []string{model.ConversationStateComplete, model.ConversationStateFailed}
	if err := db.Model(&model.Conversation{}).
		Where("user_id = ? AND state NOT IN ?", userID, closed).
		Count(&a.OpenConversations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Build{}).Where("user_id = ?", userID).Count(&a.Builds).Error; err != nil {
		return nil, err
	}
	if a.Builds > 0 {
		var last model.Build
		if err := db.Select("created_at").Where("user_id = ?", userID).Order("created_at DESC").First(&last).Error; err != nil {
			return nil, err
		}
		a.LastBuildAt = &last.CreatedAt
	}
	return &a, nil
}
