package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"pcbuild/internal/middleware"
	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// BuildHandler 配置单请求处理器
type BuildHandler struct {
	buildService *service.BuildService
}

// NewBuildHandler 创建 BuildHandler 实例
func NewBuildHandler(buildService *service.BuildService) *BuildHandler {
	return &BuildHandler{buildService: buildService}
}

// RenameBuildRequest 重命名请求
type RenameBuildRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// List 分页获取配置单
// @Router /api/v1/builds [get]
func (h *BuildHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, err := h.buildService.List(c.Request.Context(), middleware.GetUserID(c), page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, list)
}

// Get 获取配置单详情
// @Router /api/v1/builds/{id} [get]
func (h *BuildHandler) Get(c *gin.Context) {
	b, err := h.buildService.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, b)
}

// Rename 重命名配置单
// @Router /api/v1/builds/{id} [patch]
func (h *BuildHandler) Rename(c *gin.Context) {
	var req RenameBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	b, err := h.buildService.Rename(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, b)
}

// Delete 删除配置单
// @Router /api/v1/builds/{id} [delete]
func (h *BuildHandler) Delete(c *gin.Context) {
	if err := h.buildService.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, nil)
		return
	}
	response.NoContent(c)
}
