package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pcbuild/internal/cache"
	pkgJwt "pcbuild/pkg/jwt"
	"pcbuild/pkg/response"
)

// Handler 处理 WebSocket 连接
type Handler struct {
	hub        *Hub
	jwtService *pkgJwt.JWTService
	store      cache.Store
	upgrader   websocket.Upgrader
}

// NewHandler 创建 WebSocket Handler
// origins 为允许的来源，包含 "*" 时不检查来源
func NewHandler(hub *Hub, jwtService *pkgJwt.JWTService, store cache.Store, origins []string) *Handler {
	return &Handler{
		hub:        hub,
		jwtService: jwtService,
		store:      store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
	}
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 命令行客户端不发送 Origin
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleChatWS 处理对话 WebSocket 连接
// 路由: GET /ws/chat
// 参数: token (query parameter) 或 Authorization 头 - Access Token
func (h *Handler) HandleChatWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if token == "" {
		response.Unauthorized(c, "token is required")
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil || h.store.IsTokenBlacklisted(c.Request.Context(), pkgJwt.HashToken(token)) {
		response.Unauthorized(c, "token is invalid or expired")
		return
	}

	// 升级失败时 upgrader 已经写入了错误响应
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, c.ClientIP())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.hub.log.Info("websocket connected", "user_id", claims.UserID)
}

// RegisterRoutes 注册 WebSocket 路由
// WebSocket 路由不需要中间件（token 在 query 中验证）
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	ws := r.Group("/ws")
	{
		ws.GET("/chat", h.HandleChatWS)
	}
}
