package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"pcbuild/internal/middleware"
	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// ConversationHandler 装机对话请求处理器
type ConversationHandler struct {
	chatService *service.ChatService
}

// NewConversationHandler 创建 ConversationHandler 实例
func NewConversationHandler(chatService *service.ChatService) *ConversationHandler {
	return &ConversationHandler{
		chatService: chatService,
	}
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

// ConsentRequest 位置授权请求
type ConsentRequest struct {
	Grant *bool `json:"grant" binding:"required"`
}

// SaveBuildRequest 保存配置单请求
type SaveBuildRequest struct {
	Name string `json:"name" binding:"max=100"`
}

// Create 开始新的对话
// @Summary 开始对话
// @Tags 对话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.StartRequest false "以已保存的配置单为起点"
// @Success 201 {object} response.Response{data=service.ConversationView}
// @Router /api/v1/conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	var req service.StartRequest
	// 请求体可以为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request")
			return
		}
	}

	conv, err := h.chatService.Start(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Created(c, conv)
}

// List 分页获取对话
// @Router /api/v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, err := h.chatService.List(c.Request.Context(), middleware.GetUserID(c), page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, list)
}

// Get 获取对话详情（完整消息、需求记录和当前配置单）
// @Router /api/v1/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.chatService.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, conv)
}

// Messages 分页获取对话消息
// @Router /api/v1/conversations/{id}/messages [get]
func (h *ConversationHandler) Messages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	list, err := h.chatService.Messages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, list)
}

// Delete 删除对话
// @Router /api/v1/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.chatService.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err, nil)
		return
	}
	response.NoContent(c)
}

// SendMessage 发送一条消息并返回这一轮的结果
// 可恢复的失败（限流、超时、无效回复）也会带上系统提示
// @Router /api/v1/conversations/{id}/messages [post]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	turn, err := h.chatService.Send(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err, turnData(turn))
		return
	}
	response.Success(c, turn)
}

// ResolveConsent 回答位置授权请求
// 授权时使用请求的来源 IP 查询城市和气候
// @Router /api/v1/conversations/{id}/consent [post]
func (h *ConversationHandler) ResolveConsent(c *gin.Context) {
	var req ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: grant is required")
		return
	}

	turn, err := h.chatService.ResolveConsent(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), *req.Grant, c.ClientIP())
	if err != nil {
		writeError(c, err, turnData(turn))
		return
	}
	response.Success(c, turn)
}

// SaveBuild 保存当前配置单
// @Router /api/v1/conversations/{id}/build [post]
func (h *ConversationHandler) SaveBuild(c *gin.Context) {
	var req SaveBuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request")
			return
		}
	}

	b, err := h.chatService.SaveBuild(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Created(c, b)
}

// turnData 避免把 nil 指针包装成非 nil 的 interface
func turnData(turn *service.TurnView) interface{} {
	if turn == nil {
		return nil
	}
	return turn
}
