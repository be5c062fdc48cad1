// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
const (
	CodeSuccess         = 0    // 成功
	CodeBadRequest      = 1000 // 请求参数错误
	CodeUnauthorized    = 1001 // 未授权
	CodeForbidden       = 1002 // 禁止访问
	CodeNotFound        = 1003 // 资源不存在
	CodeInternalError   = 1004 // 服务器内部错误
	CodeTooManyRequests = 1005 // 请求过于频繁

	CodeUserExists    = 1101 // 用户已存在
	CodeUserNotFound  = 1102 // 用户不存在
	CodePasswordWrong = 1103 // 密码错误
	CodeEmailExists   = 1104 // 邮箱已被使用

	CodeConversationNotFound = 1301 // 会话不存在
	CodeConversationClosed   = 1302 // 会话已完成或已失败
	CodeConversationBusy     = 1303 // 上一轮还在处理
	CodeAwaitingConsent      = 1304 // 等待位置授权
	CodeNoPendingConsent     = 1305 // 没有待处理的授权

	CodeInvalidReply        = 1401 // 模型返回了无效数据
	CodeOracleRateLimited   = 1402 // 模型限流
	CodeOracleNotConfigured = 1403 // 模型未配置
	CodeOracleUnavailable   = 1404 // 模型不可用或超时
	CodeCatalogUnavailable  = 1405 // 目录加载失败
	CodeBuildNotFound       = 1501 // 配置单不存在
	CodeBuildNotReady       = 1502 // 会话还没有可保存的配置单
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "created",
		Data:    data,
	})
}

// NoContent 返回 204 无内容响应（用于删除操作）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// ErrorWithData 返回错误响应，同时带上数据
// 用于失败的对话轮次：系统提示和当前状态仍然需要返回给客户端
func ErrorWithData(c *gin.Context, httpCode, bizCode int, message string, data interface{}) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
		Data:    data,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusInternalServerError, CodeInternalError, message)
}
