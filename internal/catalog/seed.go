package catalog

import (
	"context"
	"fmt"

	"pcbuild/internal/model"
)

// Seeder 由 repository.ComponentRepository 实现
type Seeder interface {
	Count(ctx context.Context) (int64, error)
	UpsertBatch(ctx context.Context, items []model.Component) error
}

// Seed 表为空时从 YAML 文件导入目录
// 返回导入的数量，表中已有数据时返回 0
func Seed(ctx context.Context, repo Seeder, path string) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count components: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	items, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	// 与加载时使用相同的清洗规则
	clean := newSnapshot(items, Options{}).All()
	if len(clean) == 0 {
		return 0, nil
	}
	if err := repo.UpsertBatch(ctx, clean); err != nil {
		return 0, fmt.Errorf("import components: %w", err)
	}
	return len(clean), nil
}
