package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pcbuild/internal/service"
	ws "pcbuild/internal/websocket"
)

// heartbeatInterval 心跳间隔，需要小于服务端的读超时
const heartbeatInterval = 30 * time.Second

// Stream WebSocket 实时事件连接
// 同一账号在任意设备上完成的对话轮次都会推送过来
type Stream struct {
	conn *websocket.Conn
	done chan struct{}

	mu     sync.Mutex
	closed bool

	onTurn func(*service.TurnView)
}

// streamURL 把 HTTP 地址转换为 WebSocket 地址
func streamURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Connect 建立实时事件连接，使用客户端当前的访问令牌
// onTurn 在读协程中执行
func (c *Client) Connect(ctx context.Context, onTurn func(*service.TurnView)) (*Stream, error) {
	target, err := streamURL(c.baseURL, c.Tokens().AccessToken)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{Status: resp.StatusCode, Message: "unauthorized"}
		}
		return nil, fmt.Errorf("connect stream: %w", err)
	}

	s := &Stream{
		conn:   conn,
		done:   make(chan struct{}),
		onTurn: onTurn,
	}
	go s.readPump()
	go s.writePump()
	return s, nil
}

// Done 连接关闭后返回
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close 断开连接
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)

	// 发送关闭帧
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// readPump 读取消息并分发到回调
func (s *Stream) readPump() {
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != ws.TypeTurn || s.onTurn == nil {
			continue
		}

		var turn service.TurnView
		if err := json.Unmarshal(msg.Payload, &turn); err == nil {
			s.onTurn(&turn)
		}
	}
}

// writePump 定时发送心跳；客户端只通过 HTTP 发起对话轮次
func (s *Stream) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			data, _ := json.Marshal(ws.NewMessage(ws.TypeHeartbeat, nil))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		}
	}
}
