package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pcbuild/internal/model"
)

// ConversationRepository 会话数据访问层
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建 ConversationRepository 实例
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建新会话
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Conversation: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetByIDWithMessages 根据 ID 获取会话及其所有消息
// 用于在缓存失效后重建会话
func (r *ConversationRepository) GetByIDWithMessages(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUser 分页获取用户的会话，最近活跃的在前
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Conversation: 会话列表（不含消息）
//   - int64: 总数量
//   - error: 数据库错误
func (r *ConversationRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&convs).Error

	return convs, total, err
}

// SaveTurn 在一个事务中保存一轮对话的结果
// 会话状态和新增消息要么全部写入，要么全部不写入
func (r *ConversationRepository) SaveTurn(ctx context.Context, conv *model.Conversation, messages []model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"state":            conv.State,
				"record":           conv.Record,
				"consent_resolved": conv.ConsentResolved,
				"pending_action":   conv.PendingAction,
				"failure_reason":   conv.FailureReason,
				"current_build":    conv.CurrentBuild,
				"updated_at":       conv.UpdatedAt,
			}).Error
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		return tx.CreateInBatches(messages, 100).Error
	})
}

// AttachBuild 记录会话生成的配置单
func (r *ConversationRepository) AttachBuild(ctx context.Context, id, buildID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("build_id", buildID).Error
}

// Delete 删除会话及其所有消息
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Conversation{}).Error
	})
}
