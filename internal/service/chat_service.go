// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository、Cache 和对话引擎
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"pcbuild/internal/build"
	"pcbuild/internal/cache"
	"pcbuild/internal/engine"
	"pcbuild/internal/model"
	"pcbuild/internal/preference"
	"pcbuild/internal/repository"
	"pcbuild/pkg/logger"
	"pcbuild/pkg/util"
)

// 会话相关错误
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// EventTurn 实时推送的事件类型
const EventTurn = "conversation:turn"

// ChatService 装机对话服务
// 每一轮: 获取轮次锁 -> 从缓存恢复会话（缓存未命中时从数据库重建） -> 执行引擎轮次
// -> 持久化新消息和状态 -> 完成时保存配置单 -> 推送事件
type ChatService struct {
	engine   *engine.Engine
	convRepo *repository.ConversationRepository
	msgRepo  *repository.MessageRepository
	builds   *BuildService
	users    *UserService
	store    cache.Store
	log      *logger.Logger
	lockTTL  time.Duration
}

// NewChatService 创建 ChatService 实例
// lockTTL 应大于单轮超时，保证进程崩溃时锁最终会释放
func NewChatService(
	eng *engine.Engine,
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	builds *BuildService,
	users *UserService,
	store cache.Store,
	log *logger.Logger,
	lockTTL time.Duration,
) *ChatService {
	if log == nil {
		log = logger.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = engine.DefaultTurnTimeout + 30*time.Second
	}
	return &ChatService{
		engine:   eng,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		builds:   builds,
		users:    users,
		store:    store,
		log:      log,
		lockTTL:  lockTTL,
	}
}

// ConversationView 会话详情
type ConversationView struct {
	ID              string            `json:"id"`
	State           engine.State      `json:"state"`
	Record          preference.Record `json:"record"`
	Messages        []engine.Message  `json:"messages"`
	Build           *build.Build      `json:"build,omitempty"`
	BuildID         *string           `json:"build_id,omitempty"`
	PendingAction   string            `json:"pending_action,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	ConsentResolved bool              `json:"consent_resolved"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ConversationSummary 会话列表项
type ConversationSummary struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	BuildID   *string   `json:"build_id,omitempty"`
	Messages  int64     `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationListResponse 会话列表
type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	Size          int                   `json:"size"`
}

// MessageListResponse 分页的消息列表
type MessageListResponse struct {
	Messages []engine.Message `json:"messages"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Size     int              `json:"size"`
}

// TurnView 一轮对话的结果
type TurnView struct {
	ConversationID  string            `json:"conversation_id"`
	Messages        []engine.Message  `json:"messages"`
	State           engine.State      `json:"state"`
	Record          preference.Record `json:"record"`
	Build           *build.Build      `json:"build,omitempty"`
	BuildID         *string           `json:"build_id,omitempty"`
	Unresolved      []string          `json:"unresolved_component_ids,omitempty"`
	AwaitingConsent bool              `json:"awaiting_consent"`
	Error           string            `json:"error,omitempty"`
}

// StartRequest 开始新对话
type StartRequest struct {
	// FromBuildID 以已保存配置单的需求记录为起点（"再来一套"）
	FromBuildID string `json:"from_build_id"`
}

// Start 开始新的对话
// 以已保存的配置单为起点，否则使用用户的默认预算
func (s *ChatService) Start(ctx context.Context, userID int64, req *StartRequest) (*ConversationView, error) {
	var prefill *preference.Record
	var err error
	if req != nil && req.FromBuildID != "" {
		prefill, err = s.builds.Record(ctx, userID, req.FromBuildID)
	} else {
		prefill, err = s.users.DefaultRecord(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	sess := s.engine.NewSession(uuid.NewString(), prefill)
	snap := sess.Snapshot()

	conv, err := toConversation(userID, snap)
	if err != nil {
		return nil, err
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, snap)

	s.log.Info("conversation started", "conversation", snap.ID, "user_id", userID, "prefilled", prefill != nil)
	return toView(snap, conv.BuildID), nil
}

// Get 获取会话详情
func (s *ChatService) Get(ctx context.Context, userID int64, id string) (*ConversationView, error) {
	snap, conv, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return toView(*snap, conv.BuildID), nil
}

// List 分页获取用户的会话
func (s *ChatService) List(ctx context.Context, userID int64, page, pageSize int) (*ConversationListResponse, error) {
	page, pageSize = util.NormalizePage(page, pageSize)
	convs, total, err := s.convRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		count, err := s.msgRepo.CountByConversation(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{
			ID:        c.ID,
			State:     c.State,
			BuildID:   c.BuildID,
			Messages:  count,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return &ConversationListResponse{Conversations: out, Total: total, Page: page, Size: pageSize}, nil
}

// Messages 分页获取会话消息，只包含已持久化的消息
func (s *ChatService) Messages(ctx context.Context, userID int64, id string, page, pageSize int) (*MessageListResponse, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	page, pageSize = util.NormalizePage(page, pageSize)
	msgs, total, err := s.msgRepo.ListPage(ctx, id, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &MessageListResponse{Messages: toEngineMessages(msgs), Total: total, Page: page, Size: pageSize}, nil
}

// Delete 结束并删除会话，已保存的配置单不受影响
func (s *ChatService) Delete(ctx context.Context, userID int64, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.convRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteSnapshot(ctx, id); err != nil {
		s.log.Warn("failed to drop conversation snapshot", "conversation", id, "error", err)
	}
	return nil
}

// Send 发送一条用户消息
// 轮次失败时同时返回 TurnView（包含系统提示）和失败原因
func (s *ChatService) Send(ctx context.Context, userID int64, id, text string) (*TurnView, error) {
	return s.withTurn(ctx, userID, id, func(sess *engine.Session) (*engine.TurnResult, error) {
		return sess.Submit(ctx, text)
	})
}

// ResolveConsent 处理位置授权
func (s *ChatService) ResolveConsent(ctx context.Context, userID int64, id string, grant bool, clientIP string) (*TurnView, error) {
	return s.withTurn(ctx, userID, id, func(sess *engine.Session) (*engine.TurnResult, error) {
		return sess.ResolveConsent(ctx, grant, clientIP)
	})
}

// SaveBuild 手动保存当前配置单（会话未完成时也可以保存）
func (s *ChatService) SaveBuild(ctx context.Context, userID int64, id, name string) (*BuildView, error) {
	snap, _, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	saved, err := s.builds.Save(ctx, userID, id, name, snap.Build, snap.Record)
	if err != nil {
		return nil, err
	}
	if err := s.convRepo.AttachBuild(ctx, id, saved.ID); err != nil {
		return nil, err
	}
	return toBuildView(saved)
}

func (s *ChatService) withTurn(ctx context.Context, userID int64, id string, run func(*engine.Session) (*engine.TurnResult, error)) (*TurnView, error) {
	// 先检查所有权，避免为别人的会话加锁
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}

	token, acquired, err := s.store.AcquireTurn(ctx, id, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !acquired {
		return nil, engine.ErrBusy
	}
	defer func() {
		if err := s.store.ReleaseTurn(context.WithoutCancel(ctx), id, token); err != nil {
			s.log.Warn("failed to release turn lock", "conversation", id, "error", err)
		}
	}()

	// 持有锁之后再读取快照，保证读到上一轮的结果
	before, conv, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	sess := s.engine.Restore(*before)
	res, err := run(sess)
	if err != nil {
		return nil, err
	}
	after := sess.Snapshot()

	if err := s.persist(ctx, userID, conv, len(before.Messages), after, res); err != nil {
		return nil, err
	}

	view := &TurnView{
		ConversationID:  id,
		Messages:        res.Messages,
		State:           res.State,
		Record:          res.Record,
		Build:           res.Build,
		BuildID:         conv.BuildID,
		Unresolved:      res.Unresolved,
		AwaitingConsent: res.AwaitingConsent,
	}
	if res.Failure != nil {
		view.Error = res.Failure.Error()
	}
	s.publish(ctx, userID, view)
	return view, res.Failure
}

// persist 写入数据库并刷新缓存；数据库写入失败时不更新缓存
func (s *ChatService) persist(ctx context.Context, userID int64, conv *model.Conversation, base int, snap engine.Snapshot, res *engine.TurnResult) error {
	updated, err := toConversation(userID, snap)
	if err != nil {
		return err
	}
	updated.BuildID = conv.BuildID

	messages := make([]model.Message, 0, len(res.Messages))
	for i, m := range res.Messages {
		messages = append(messages, model.Message{
			ID:             m.ID,
			ConversationID: snap.ID,
			Role:           m.Role,
			Content:        m.Content,
			Seq:            base + i,
			CreatedAt:      m.CreatedAt,
		})
	}
	if err := s.convRepo.SaveTurn(ctx, updated, messages); err != nil {
		return fmt.Errorf("save turn: %w", err)
	}

	if snap.State == engine.StateComplete && conv.BuildID == nil {
		saved, err := s.builds.Save(ctx, userID, snap.ID, "", snap.Build, snap.Record)
		switch {
		case err != nil:
			s.log.Error("failed to save final build", "conversation", snap.ID, "error", err)
		default:
			if err := s.convRepo.AttachBuild(ctx, snap.ID, saved.ID); err != nil {
				s.log.Error("failed to attach build", "conversation", snap.ID, "error", err)
			} else {
				conv.BuildID = &saved.ID
				s.log.Info("build saved", "conversation", snap.ID, "build", saved.ID, "total", saved.TotalPrice)
			}
		}
	}

	s.cacheSnapshot(ctx, snap)
	return nil
}

func (s *ChatService) cacheSnapshot(ctx context.Context, snap engine.Snapshot) {
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		s.log.Warn("failed to cache conversation snapshot", "conversation", snap.ID, "error", err)
	}
}

func (s *ChatService) publish(ctx context.Context, userID int64, view *TurnView) {
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.store.Publish(ctx, cache.Event{UserID: userID, Type: EventTurn, Payload: payload}); err != nil {
		s.log.Warn("failed to publish turn event", "conversation", view.ConversationID, "error", err)
	}
}

// owned 获取会话并检查所有权，不属于该用户时当作不存在
func (s *ChatService) owned(ctx context.Context, userID int64, id string) (*model.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// load 读取会话快照，缓存未命中时从数据库重建
func (s *ChatService) load(ctx context.Context, userID int64, id string) (*engine.Snapshot, *model.Conversation, error) {
	conv, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	snap, err := s.store.LoadSnapshot(ctx, id)
	if err != nil {
		s.log.Warn("snapshot cache unavailable", "conversation", id, "error", err)
	}
	if snap != nil {
		return snap, conv, nil
	}

	full, err := s.convRepo.GetByIDWithMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if full == nil {
		return nil, nil, ErrConversationNotFound
	}
	rebuilt, err := fromConversation(full)
	if err != nil {
		return nil, nil, err
	}
	s.cacheSnapshot(ctx, *rebuilt)
	return rebuilt, conv, nil
}

func toConversation(userID int64, snap engine.Snapshot) (*model.Conversation, error) {
	record, err := json.Marshal(snap.Record)
	if err != nil {
		return nil, err
	}
	conv := &model.Conversation{
		ID:              snap.ID,
		UserID:          userID,
		State:           string(snap.State),
		Record:          datatypes.JSON(record),
		ConsentResolved: snap.ConsentResolved,
		PendingAction:   snap.PendingAction,
		FailureReason:   util.Truncate(snap.FailureReason, 255),
		UpdatedAt:       snap.UpdatedAt,
	}
	if snap.Build != nil {
		current, err := json.Marshal(snap.Build)
		if err != nil {
			return nil, err
		}
		conv.CurrentBuild = datatypes.JSON(current)
	}
	return conv, nil
}

func fromConversation(conv *model.Conversation) (*engine.Snapshot, error) {
	snap := &engine.Snapshot{
		ID:              conv.ID,
		State:           engine.State(conv.State),
		ConsentResolved: conv.ConsentResolved,
		PendingAction:   conv.PendingAction,
		FailureReason:   conv.FailureReason,
		Messages:        toEngineMessages(conv.Messages),
		UpdatedAt:       conv.UpdatedAt,
	}
	if len(conv.Record) > 0 {
		if err := json.Unmarshal(conv.Record, &snap.Record); err != nil {
			return nil, fmt.Errorf("decode conversation record: %w", err)
		}
	}
	if len(conv.CurrentBuild) > 0 && string(conv.CurrentBuild) != "null" {
		var b build.Build
		if err := json.Unmarshal(conv.CurrentBuild, &b); err != nil {
			return nil, fmt.Errorf("decode current build: %w", err)
		}
		snap.Build = &b
	}
	return snap, nil
}

func toEngineMessages(msgs []model.Message) []engine.Message {
	out := make([]engine.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, engine.Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func toView(snap engine.Snapshot, buildID *string) *ConversationView {
	return &ConversationView{
		ID:              snap.ID,
		State:           snap.State,
		Record:          snap.Record,
		Messages:        snap.Messages,
		Build:           snap.Build,
		BuildID:         buildID,
		PendingAction:   snap.PendingAction,
		FailureReason:   snap.FailureReason,
		ConsentResolved: snap.ConsentResolved,
		UpdatedAt:       snap.UpdatedAt,
	}
}
