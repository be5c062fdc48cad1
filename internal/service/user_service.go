package service

import (
	"context"
	"fmt"
	"strings"

	"pcbuild/internal/model"
	"pcbuild/internal/preference"
	"pcbuild/internal/repository"
	"pcbuild/pkg/util"
)

// UserService 用户资料：账号信息、装机概况和新对话的默认预算
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService 创建 UserService 实例
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// ProfileView 用户资料
type ProfileView struct {
	*model.User
	Activity repository.UserActivity `json:"activity"`
}

// GetProfile 获取用户资料和装机概况
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*ProfileView, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity, err := s.userRepo.Activity(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ProfileView{User: user, Activity: *activity}, nil
}

func (s *UserService) user(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfileRequest 更新用户资料请求
// 字段为 nil 表示不修改；空字符串表示清除
type UpdateProfileRequest struct {
	Email *string `json:"email"`
	// DefaultBudget 接受 "5000"、"R$ 5.000,00"、"5 mil"；"0" 也表示清除
	DefaultBudget *string `json:"default_budget"`
}

// UpdateProfile 更新用户资料
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*ProfileView, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			fields["email"] = nil
		} else {
			taken, err := s.userRepo.ExistsByEmail(ctx, email, userID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrEmailExists
			}
			fields["email"] = email
		}
	}
	if req.DefaultBudget != nil {
		budget, err := parseDefaultBudget(*req.DefaultBudget)
		if err != nil {
			return nil, err
		}
		if budget == nil {
			fields["default_budget"] = nil
		} else {
			fields["default_budget"] = *budget
		}
	}

	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, err
		}
	}
	return s.GetProfile(ctx, userID)
}

// parseDefaultBudget 空值或 0 返回 nil（清除）
func parseDefaultBudget(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, ok := preference.ParseAmount(raw)
	if !ok || v < 0 {
		return nil, fmt.Errorf("%w: default budget %q is not an amount", ErrInvalidInput, raw)
	}
	if v == 0 {
		return nil, nil
	}
	return &v, nil
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword 修改密码
func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !util.CheckPassword(req.OldPassword, user.PasswordHash) {
		return ErrPasswordWrong
	}

	newHash, err := util.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{"password_hash": newHash})
}

// DefaultRecord 新对话的初始需求记录，没有设置默认预算时返回 nil
func (s *UserService) DefaultRecord(ctx context.Context, userID int64) (*preference.Record, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.DefaultBudget == nil || *user.DefaultBudget <= 0 {
		return nil, nil
	}
	return &preference.Record{Budget: preference.NewAmount(*user.DefaultBudget)}, nil
}
