package handler

import (
	"github.com/gin-gonic/gin"

	"pcbuild/internal/middleware"
	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// UserHandler 用户请求处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户资料
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, user)
}

// UpdateProfile 更新当前用户资料
// @Router /api/v1/users/me [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, user)
}

// ChangePassword 修改密码
// @Router /api/v1/users/me/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), middleware.GetUserID(c), &req); err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, nil)
}
