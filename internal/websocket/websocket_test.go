package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbuild/internal/cache"
	"pcbuild/internal/engine"
	"pcbuild/internal/service"
	"pcbuild/pkg/jwt"
	"pcbuild/pkg/response"
)

type fakeChat struct {
	store cache.Store

	mu      sync.Mutex
	err     error
	granted []bool
}

func (f *fakeChat) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChat) turn(ctx context.Context, userID int64, id string) (*service.TurnView, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	view := &service.TurnView{ConversationID: id, State: engine.StateCollecting}
	payload, _ := json.Marshal(view)
	_ = f.store.Publish(ctx, cache.Event{UserID: userID, Type: service.EventTurn, Payload: payload})
	return view, nil
}

func (f *fakeChat) Send(ctx context.Context, userID int64, id, text string) (*service.TurnView, error) {
	return f.turn(ctx, userID, id)
}

func (f *fakeChat) ResolveConsent(ctx context.Context, userID int64, id string, grant bool, clientIP string) (*service.TurnView, error) {
	f.mu.Lock()
	f.granted = append(f.granted, grant)
	f.mu.Unlock()
	return f.turn(ctx, userID, id)
}

type harness struct {
	url    string
	tokens *jwt.JWTService
	chat   *fakeChat
}

func newHarness(t *testing.T) *harness {
	gin.SetMode(gin.TestMode)
	store := cache.NewMemoryCache(time.Hour)
	chat := &fakeChat{store: store}
	tokens := jwt.NewJWTService("a-test-secret-that-is-long-enough!", time.Minute, time.Hour)

	hub := NewHub(chat, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	r := gin.New()
	NewHandler(hub, tokens, store, []string{"*"}).RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		hub.Wait()
		srv.Close()
	})
	return &harness{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
		tokens: tokens,
		chat:   chat,
	}
}

func (h *harness) dial(t *testing.T, userID int64) *gws.Conn {
	token, err := h.tokens.GenerateAccessToken(userID, "ana")
	require.NoError(t, err)
	conn, _, err := gws.DefaultDialer.Dial(h.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *gws.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRejectsMissingOrInvalidToken(t *testing.T) {
	h := newHarness(t)

	_, resp, err := gws.DefaultDialer.Dial(h.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refresh, err := h.tokens.GenerateRefreshToken(1, "ana")
	require.NoError(t, err)
	_, resp, err = gws.DefaultDialer.Dial(h.url+"?token="+refresh, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 1)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeHeartbeat, MessageID: "h1"}))
	msg := read(t, conn)
	assert.Equal(t, TypePong, msg.Type)
	assert.Equal(t, "h1", msg.MessageID)
}

func TestChatSendDeliversTurnEvent(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 1)

	require.NoError(t, conn.WriteJSON(NewMessageWithID(TypeChatSend, ChatSendPayload{ConversationID: "c1", Content: "hi"}, "m1")))

	thinking := read(t, conn)
	assert.Equal(t, TypeThinking, thinking.Type)
	assert.Equal(t, "m1", thinking.MessageID)

	turn := read(t, conn)
	require.Equal(t, TypeTurn, turn.Type)
	var view service.TurnView
	require.NoError(t, json.Unmarshal(turn.Payload, &view))
	assert.Equal(t, "c1", view.ConversationID)

	require.NoError(t, conn.WriteJSON(NewMessage(TypeChatConsent, ChatConsentPayload{ConversationID: "c1", Grant: true})))
	assert.Equal(t, TypeThinking, read(t, conn).Type)
	assert.Equal(t, TypeTurn, read(t, conn).Type)
	h.chat.mu.Lock()
	assert.Equal(t, []bool{true}, h.chat.granted)
	h.chat.mu.Unlock()
}

func TestChatErrorsUseBusinessCodes(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 1)

	h.chat.fail(engine.ErrBusy)
	require.NoError(t, conn.WriteJSON(NewMessageWithID(TypeChatSend, ChatSendPayload{ConversationID: "c1", Content: "hi"}, "m2")))
	assert.Equal(t, TypeThinking, read(t, conn).Type)

	msg := read(t, conn)
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "m2", msg.MessageID)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, response.CodeConversationBusy, payload.Code)
	assert.Equal(t, "c1", payload.ConversationID)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeChatSend, Payload: json.RawMessage(`{"conversation_id":"c1"}`)}))
	msg = read(t, conn)
	require.Equal(t, TypeError, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, response.CodeBadRequest, payload.Code)

	require.NoError(t, conn.WriteJSON(Message{Type: "nope"}))
	assert.Equal(t, TypeError, read(t, conn).Type)
}

func TestEventsOnlyReachTheirUser(t *testing.T) {
	h := newHarness(t)
	ana := h.dial(t, 1)
	bia := h.dial(t, 2)

	require.NoError(t, ana.WriteJSON(NewMessage(TypeChatSend, ChatSendPayload{ConversationID: "c1", Content: "hi"})))
	assert.Equal(t, TypeThinking, read(t, ana).Type)
	assert.Equal(t, TypeTurn, read(t, ana).Type)

	// bia 只会收到自己的心跳响应
	require.NoError(t, bia.WriteJSON(Message{Type: TypeHeartbeat}))
	assert.Equal(t, TypePong, read(t, bia).Type)
}
