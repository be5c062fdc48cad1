package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pcbuild/internal/model"
)

// ComponentRepository 配件目录数据访问层
// 实现 catalog.ComponentLister 和 catalog.Seeder
type ComponentRepository struct {
	db *gorm.DB
}

// NewComponentRepository 创建 ComponentRepository 实例
func NewComponentRepository(db *gorm.DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

// ListAll 读取整个目录
// 目录规模在千条以内，一次读出后由 catalog.Cache 缓存
func (r *ComponentRepository) ListAll(ctx context.Context) ([]model.Component, error) {
	var items []model.Component
	err := r.db.WithContext(ctx).Order("category ASC, price ASC, id ASC").Find(&items).Error
	return items, err
}

// Count 目录中的配件数量
func (r *ComponentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Component{}).Count(&count).Error
	return count, err
}

// UpsertBatch 按 ID 插入或更新配件
func (r *ComponentRepository) UpsertBatch(ctx context.Context, items []model.Component) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "price", "category", "link", "brand", "updated_at"}),
		}).
		CreateInBatches(items, 100).Error
}
