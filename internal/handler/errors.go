package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pcbuild/internal/catalog"
	"pcbuild/internal/engine"
	"pcbuild/internal/oracle"
	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// apiError 一个业务错误对应的 HTTP 状态码、业务码和提示
type apiError struct {
	target  error
	status  int
	code    int
	message string
}

// 按顺序匹配，第一个 errors.Is 命中的生效
var apiErrors = []apiError{
	{service.ErrConversationNotFound, http.StatusNotFound, response.CodeConversationNotFound, "conversation not found"},
	{service.ErrBuildNotFound, http.StatusNotFound, response.CodeBuildNotFound, "build not found"},
	{service.ErrComponentNotFound, http.StatusNotFound, response.CodeNotFound, "component not found"},
	{service.ErrBuildNotReady, http.StatusConflict, response.CodeBuildNotReady, "there is no build to save yet"},
	{service.ErrInvalidInput, http.StatusBadRequest, response.CodeBadRequest, "invalid input"},
	{service.ErrUserNotFound, http.StatusNotFound, response.CodeUserNotFound, "user not found"},
	{service.ErrUserExists, http.StatusConflict, response.CodeUserExists, "username already taken"},
	{service.ErrEmailExists, http.StatusConflict, response.CodeEmailExists, "email already registered"},
	{service.ErrPasswordWrong, http.StatusUnauthorized, response.CodePasswordWrong, "wrong username or password"},
	{service.ErrUserDisabled, http.StatusForbidden, response.CodeForbidden, "account disabled"},

	{engine.ErrEmptyInput, http.StatusBadRequest, response.CodeBadRequest, "message must not be empty"},
	{engine.ErrBusy, http.StatusConflict, response.CodeConversationBusy, "the previous message is still being processed"},
	{engine.ErrClosed, http.StatusGone, response.CodeConversationClosed, "this conversation has ended, start a new one"},
	{engine.ErrAwaitingConsent, http.StatusConflict, response.CodeAwaitingConsent, "answer the location request first"},
	{engine.ErrNoPendingConsent, http.StatusConflict, response.CodeNoPendingConsent, "there is no pending location request"},
	{engine.ErrInvalidReply, http.StatusBadGateway, response.CodeInvalidReply, "the assistant returned an invalid reply, try again"},
	{engine.ErrCatalogUnavailable, http.StatusServiceUnavailable, response.CodeCatalogUnavailable, "component catalog unavailable"},
	{catalog.ErrSourceAuth, http.StatusServiceUnavailable, response.CodeCatalogUnavailable, "component catalog unavailable"},
	{catalog.ErrSourceUnavailable, http.StatusServiceUnavailable, response.CodeCatalogUnavailable, "component catalog unavailable"},

	{oracle.ErrRateLimited, http.StatusTooManyRequests, response.CodeOracleRateLimited, "the assistant is busy, wait a moment and try again"},
	{oracle.ErrNotConfigured, http.StatusServiceUnavailable, response.CodeOracleNotConfigured, "the assistant is not configured"},
	{oracle.ErrTimeout, http.StatusGatewayTimeout, response.CodeOracleUnavailable, "the assistant took too long to answer"},
	{oracle.ErrUnavailable, http.StatusBadGateway, response.CodeOracleUnavailable, "the assistant is unavailable"},
}

// Classify 返回错误对应的 HTTP 状态码、业务码和提示；未知错误返回 ok=false
// WebSocket 推送错误时也使用这里的业务码
func Classify(err error) (status, code int, message string, ok bool) {
	for _, e := range apiErrors {
		if errors.Is(err, e.target) {
			return e.status, e.code, e.message, true
		}
	}
	return http.StatusInternalServerError, response.CodeInternalError, "internal server error", false
}

// writeError 把服务层错误转换为响应；data 不为 nil 时一并返回（失败轮次的系统提示）
func writeError(c *gin.Context, err error, data interface{}) {
	status, code, message, ok := Classify(err)
	if !ok {
		_ = c.Error(err)
	}
	if data != nil {
		response.ErrorWithData(c, status, code, message, data)
		return
	}
	response.ErrorWithCode(c, status, code, message)
}
