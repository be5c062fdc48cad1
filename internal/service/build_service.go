package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"pcbuild/internal/build"
	"pcbuild/internal/model"
	"pcbuild/internal/preference"
	"pcbuild/internal/repository"
	"pcbuild/pkg/util"
)

// 配置单相关错误
var (
	ErrBuildNotFound = errors.New("build not found")
	ErrBuildNotReady = errors.New("conversation has no build to save")
)

// maxBuildName 配置单名称的最大长度
const maxBuildName = 100

// BuildService 配置单服务
// 配置单保存后与会话和目录解耦：配件以完整快照保存
type BuildService struct {
	buildRepo *repository.BuildRepository
	now       func() time.Time
}

// NewBuildService 创建 BuildService 实例
func NewBuildService(buildRepo *repository.BuildRepository) *BuildService {
	return &BuildService{buildRepo: buildRepo, now: time.Now}
}

// BuildView 配置单详情
type BuildView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ConversationID string            `json:"conversation_id"`
	Components     []model.Component `json:"components"`
	TotalPrice     float64           `json:"total_price"`
	Record         preference.Record `json:"record"`
	Justification  string            `json:"justification"`
	Warnings       []string          `json:"warnings"`
	CreatedAt      time.Time         `json:"created_at"`
}

// BuildSummary 配置单列表项
type BuildSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TotalPrice float64   `json:"total_price"`
	Parts      int       `json:"parts"`
	CreatedAt  time.Time `json:"created_at"`
}

// BuildListResponse 配置单列表
type BuildListResponse struct {
	Builds []BuildSummary `json:"builds"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Size   int            `json:"size"`
}

// Save 保存会话生成的配置单
// name 为空时根据用途生成名称
func (s *BuildService) Save(ctx context.Context, userID int64, conversationID, name string, b *build.Build, rec preference.Record) (*model.Build, error) {
	if b == nil || b.Empty() {
		return nil, ErrBuildNotReady
	}

	components, err := json.Marshal(b.Components)
	if err != nil {
		return nil, err
	}
	warnings, err := json.Marshal(nonNil(b.Warnings))
	if err != nil {
		return nil, err
	}
	record, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultBuildName(rec, s.now())
	}

	saved := &model.Build{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Name:           util.Truncate(name, maxBuildName),
		Components:     datatypes.JSON(components),
		TotalPrice:     b.TotalPrice,
		Record:         datatypes.JSON(record),
		Justification:  b.Justification,
		Warnings:       datatypes.JSON(warnings),
	}
	if err := s.buildRepo.Create(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// owned 获取配置单并检查所有权，不属于该用户时当作不存在
func (s *BuildService) owned(ctx context.Context, userID int64, id string) (*model.Build, error) {
	b, err := s.buildRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil || b.UserID != userID {
		return nil, ErrBuildNotFound
	}
	return b, nil
}

// Get 获取配置单详情
func (s *BuildService) Get(ctx context.Context, userID int64, id string) (*BuildView, error) {
	b, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return toBuildView(b)
}

// Record 配置单保存时的需求记录，用于以此为起点开始新的对话
func (s *BuildService) Record(ctx context.Context, userID int64, id string) (*preference.Record, error) {
	b, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	var rec preference.Record
	if len(b.Record) > 0 {
		if err := json.Unmarshal(b.Record, &rec); err != nil {
			return nil, fmt.Errorf("decode build record: %w", err)
		}
	}
	return &rec, nil
}

// List 分页获取用户的配置单
func (s *BuildService) List(ctx context.Context, userID int64, page, pageSize int) (*BuildListResponse, error) {
	page, pageSize = util.NormalizePage(page, pageSize)
	builds, total, err := s.buildRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}

	out := make([]BuildSummary, 0, len(builds))
	for _, b := range builds {
		var parts []json.RawMessage
		_ = json.Unmarshal(b.Components, &parts)
		out = append(out, BuildSummary{
			ID:         b.ID,
			Name:       b.Name,
			TotalPrice: b.TotalPrice,
			Parts:      len(parts),
			CreatedAt:  b.CreatedAt,
		})
	}
	return &BuildListResponse{Builds: out, Total: total, Page: page, Size: pageSize}, nil
}

// Rename 重命名配置单
func (s *BuildService) Rename(ctx context.Context, userID int64, id, name string) (*BuildView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	b, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	b.Name = util.Truncate(name, maxBuildName)
	if err := s.buildRepo.UpdateName(ctx, id, b.Name); err != nil {
		return nil, err
	}
	return toBuildView(b)
}

// Delete 删除配置单
func (s *BuildService) Delete(ctx context.Context, userID int64, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.buildRepo.Delete(ctx, id)
}

func toBuildView(b *model.Build) (*BuildView, error) {
	view := &BuildView{
		ID:             b.ID,
		Name:           b.Name,
		ConversationID: b.ConversationID,
		TotalPrice:     b.TotalPrice,
		Justification:  b.Justification,
		CreatedAt:      b.CreatedAt,
		Components:     []model.Component{},
		Warnings:       []string{},
	}
	if len(b.Components) > 0 {
		if err := json.Unmarshal(b.Components, &view.Components); err != nil {
			return nil, fmt.Errorf("decode build components: %w", err)
		}
	}
	if len(b.Warnings) > 0 {
		if err := json.Unmarshal(b.Warnings, &view.Warnings); err != nil {
			return nil, fmt.Errorf("decode build warnings: %w", err)
		}
	}
	if len(b.Record) > 0 {
		if err := json.Unmarshal(b.Record, &view.Record); err != nil {
			return nil, fmt.Errorf("decode build record: %w", err)
		}
	}
	return view, nil
}

// defaultBuildName 例如 "Gaming PC (2026-05-04)"
func defaultBuildName(rec preference.Record, now time.Time) string {
	label := "PC"
	switch preference.ClassifyPurpose(rec.PCProfile.Purpose) {
	case preference.PurposeGaming:
		label = "Gaming PC"
	case preference.PurposeWork:
		label = "Work PC"
	case preference.PurposeCreative:
		label = "Creator PC"
	}
	return fmt.Sprintf("%s (%s)", label, now.Format("2006-01-02"))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
