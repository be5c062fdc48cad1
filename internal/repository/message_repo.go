package repository

import (
	"context"

	"gorm.io/gorm"

	"pcbuild/internal/model"
)

// MessageRepository 消息数据访问层
// 消息只追加，不修改
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListPage 分页获取会话的消息
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Message: 消息列表
//   - int64: 总数量
//   - error: 数据库错误
func (r *MessageRepository) ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]model.Message, int64, error) {
	var messages []model.Message
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Message{}).Where("conversation_id = ?", conversationID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("seq ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&messages).Error

	return messages, total, err
}

// CountByConversation 统计会话的消息数量
func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error
	return count, err
}
