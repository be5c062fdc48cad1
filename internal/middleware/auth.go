// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pcbuild/internal/cache"
	"pcbuild/pkg/jwt"
	"pcbuild/pkg/response"
)

// 上下文中的键
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextToken    = "token"
	ContextTokenExp = "token_exp"
)

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token，并将用户信息存入上下文
// 参数:
//   - jwtService: JWT 服务实例，用于解析和验证 Token
//   - store: 缓存实例，用于检查 Token 黑名单
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(jwtService *jwt.JWTService, store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Authorization 字段
		// 格式: "Bearer <token>"
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}

		// 2. 验证签名、过期时间和用途
		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "token is invalid or expired")
			c.Abort()
			return
		}

		// 3. 用户登出后，Token 会被加入黑名单
		if store.IsTokenBlacklisted(c.Request.Context(), jwt.HashToken(tokenString)) {
			response.Unauthorized(c, "token has been revoked")
			c.Abort()
			return
		}

		// 4. 后续的 Handler 可以通过 GetUserID(c) 获取
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextToken, tokenString)
		if claims.ExpiresAt != nil {
			c.Set(ContextTokenExp, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// bearerToken 解析 "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetUserID 从上下文获取用户 ID，未认证返回 0
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}

// GetUsername 从上下文获取用户名
func GetUsername(c *gin.Context) string {
	return c.GetString(ContextUsername)
}

// GetToken 从上下文获取原始 Token 及其过期时间，用于登出
func GetToken(c *gin.Context) (string, time.Time, bool) {
	token := c.GetString(ContextToken)
	exp := c.GetTime(ContextTokenExp)
	return token, exp, token != "" && !exp.IsZero()
}
