package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pcbuild/internal/model"
)

// BuildRepository 配置单数据访问层
type BuildRepository struct {
	db *gorm.DB
}

// NewBuildRepository 创建 BuildRepository 实例
func NewBuildRepository(db *gorm.DB) *BuildRepository {
	return &BuildRepository{db: db}
}

// Create 保存配置单
func (r *BuildRepository) Create(ctx context.Context, b *model.Build) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// GetByID 根据 ID 获取配置单
// 参数:
//   - ctx: 上下文
//   - id: 配置单ID
//
// 返回:
//   - *model.Build: 配置单，未找到返回 nil
//   - error: 数据库错误
func (r *BuildRepository) GetByID(ctx context.Context, id string) (*model.Build, error) {
	var b model.Build
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListByUser 分页获取用户的配置单，最新的在前
func (r *BuildRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]model.Build, int64, error) {
	var builds []model.Build
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Build{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&builds).Error

	return builds, total, err
}

// UpdateName 重命名配置单
func (r *BuildRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.db.WithContext(ctx).
		Model(&model.Build{}).
		Where("id = ?", id).
		Update("name", name).Error
}

// Delete 删除配置单
func (r *BuildRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Build{}).Error
}
