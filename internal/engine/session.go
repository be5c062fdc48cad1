package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"pcbuild/internal/build"
	"pcbuild/internal/catalog"
	"pcbuild/internal/oracle"
	"pcbuild/internal/preference"
	"pcbuild/internal/reply"
)

// 系统提示文本，只展示给用户，不进入模型历史
const (
	NoticeInvalidReply   = "The assistant returned an invalid answer. Please send your message again."
	NoticeRateLimited    = "The assistant is receiving too many requests right now. Please wait a moment and try again."
	NoticeNotConfigured  = "The assistant is not configured on this server. This conversation cannot continue."
	NoticeTimeout        = "The assistant took too long to answer. Please try again."
	NoticeUnavailable    = "The assistant is temporarily unavailable. Please try again."
	NoticeCatalogFailure = "The component catalog could not be loaded. Please try again later."
)

// TurnResult 一轮对话的结果
type TurnResult struct {
	// Messages 本轮新增的消息: 成功时为用户消息和助手回复，失败时为一条系统提示
	Messages []Message
	State    State
	Record   preference.Record
	// Build 当前配置单，本轮没有新推荐时保持上一轮的结果
	Build *build.Build
	// Unresolved 模型给出但目录中不存在的配件 ID
	Unresolved []string
	// AwaitingConsent 模型请求了位置授权，客户端需要询问用户
	AwaitingConsent bool
	// Failure 本轮失败的原因，nil 表示成功
	Failure error
}

// Session 一个会话实例
// busy 保证同一时刻只有一个轮次在执行；mu 只保护快照的读写
type Session struct {
	engine *Engine
	busy   atomic.Bool
	mu     sync.RWMutex
	snap   Snapshot
}

// ID 会话 ID
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.ID
}

// Busy 是否有轮次正在执行
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// State 当前状态
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.State
}

// Snapshot 当前状态的副本
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Submit 处理一条用户消息
// 前置条件不满足时返回错误；轮次本身的失败通过 TurnResult.Failure 返回
func (s *Session) Submit(ctx context.Context, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	snap := s.Snapshot()
	switch {
	case snap.State.Closed():
		return nil, ErrClosed
	case snap.State == StateAwaitingSideChannel:
		return nil, ErrAwaitingConsent
	}

	res := s.engine.turn(ctx, snap, text)
	s.commit(res.snapshot)
	return res.TurnResult, nil
}

// ResolveConsent 处理位置授权的结果
// 授权时先同步完成补全，再用一条用户消息继续对话
func (s *Session) ResolveConsent(ctx context.Context, grant bool, clientIP string) (*TurnResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	snap := s.Snapshot()
	if snap.State != StateAwaitingSideChannel {
		if snap.State.Closed() {
			return nil, ErrClosed
		}
		return nil, ErrNoPendingConsent
	}

	e := s.engine
	env := preference.Environment{LocationConsent: preference.ConsentDeclined}
	if grant {
		env.LocationConsent = preference.ConsentGranted
		if e.enricher != nil {
			if found := e.enricher.Enrich(ctx, clientIP); found != nil {
				env = *found
				env.LocationConsent = preference.ConsentGranted
			}
		}
	}

	snap.Record = preference.MergeEnvironment(snap.Record, env)
	snap.ConsentResolved = true
	snap.PendingAction = ""
	snap.State = StateCollecting
	snap.UpdatedAt = e.now()

	res := e.turn(ctx, snap, consentMessage(grant, env))
	// 补全的结果在轮次失败时也保留
	s.commit(res.snapshot)
	return res.TurnResult, nil
}

func (s *Session) commit(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func consentMessage(grant bool, env preference.Environment) string {
	if !grant {
		return "I prefer not to share my location."
	}
	if env.City == "" {
		return "I allow using my location."
	}
	return fmt.Sprintf("I allow using my location. I am in %s, %s.", env.City, env.CountryCode)
}

type turnOutcome struct {
	*TurnResult
	snapshot Snapshot
}

// turn 执行一轮；snap 是调用方持有的副本，可以直接修改
func (e *Engine) turn(ctx context.Context, snap Snapshot, text string) turnOutcome {
	cat, err := e.catalog.Load(ctx)
	if err != nil {
		e.log.Error("catalog load failed", "conversation", snap.ID, "error", err)
		return e.fail(snap, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err), NoticeCatalogFailure)
	}

	next := preference.NextQuestion(snap.Record, snap.ConsentResolved)
	req := &oracle.Request{
		History:      history(snap.Messages, text),
		Preferences:  snap.Record.JSON(),
		Candidates:   catalog.Summaries(cat.Candidates(snap.Record.BudgetValue())),
		Instructions: oracle.Instructions(snap.Record, next, snap.State == StateFinalizing),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	raw, err := e.oracle.CompleteConversation(callCtx, req)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, oracle.ErrTimeout) {
			err = fmt.Errorf("%w: %v", oracle.ErrTimeout, err)
		}
		return e.oracleFailure(snap, err)
	}

	rep := reply.Parse(raw)
	if !rep.Validate() {
		e.log.Warn("invalid model reply", "conversation", snap.ID, "length", len(raw))
		return e.fail(snap, ErrInvalidReply, NoticeInvalidReply)
	}

	now := e.now()
	added := []Message{
		{ID: e.newID(), Role: RoleUser, Content: text, CreatedAt: now},
		{ID: e.newID(), Role: RoleAssistant, Content: strings.TrimSpace(rep.Text), CreatedAt: now},
	}
	snap.Messages = append(snap.Messages, added...)
	snap.Record = preference.Merge(snap.Record, *rep.Preferences)
	snap.UpdatedAt = now

	var unresolved []string
	if len(rep.ComponentIDs) > 0 {
		proj := build.Project(build.Input{
			ComponentIDs:  rep.ComponentIDs,
			DeclaredTotal: rep.TotalPrice,
			Justification: rep.Justification,
			Warnings:      rep.CompatibilityWarnings,
		}, cat.Lookup)
		snap.Build = proj.Build
		unresolved = proj.Unresolved
		if len(unresolved) > 0 {
			e.log.Warn("model recommended unknown components",
				"conversation", snap.ID, "unresolved", unresolved)
		}
	}

	awaiting := false
	settled := bool(rep.Complete) ||
		(snap.State == StateFinalizing && preference.NextQuestion(snap.Record, snap.ConsentResolved) == preference.QuestionNone)
	switch {
	case rep.RequestsLocation() && !snap.ConsentResolved && !snap.Record.Environment.LocationResolved():
		snap.State = StateAwaitingSideChannel
		snap.PendingAction = reply.ActionRequestLocation
		awaiting = true
	case settled && snap.Build != nil && !snap.Build.Empty():
		snap.State = StateComplete
	case settled:
		snap.State = StateFinalizing
	default:
		snap.State = StateCollecting
	}
	if snap.Record.Environment.LocationResolved() {
		snap.ConsentResolved = true
	}

	e.log.Debug("turn completed", "conversation", snap.ID, "state", snap.State)

	return turnOutcome{
		TurnResult: &TurnResult{
			Messages:        added,
			State:           snap.State,
			Record:          snap.Record,
			Build:           snap.Build,
			Unresolved:      unresolved,
			AwaitingConsent: awaiting,
		},
		snapshot: snap,
	}
}

func (e *Engine) oracleFailure(snap Snapshot, err error) turnOutcome {
	switch {
	case errors.Is(err, oracle.ErrNotConfigured):
		e.log.Error("oracle not configured", "conversation", snap.ID, "error", err)
		snap.State = StateFailed
		snap.FailureReason = err.Error()
		return e.fail(snap, err, NoticeNotConfigured)
	case errors.Is(err, oracle.ErrRateLimited):
		e.log.Warn("oracle rate limited", "conversation", snap.ID)
		return e.fail(snap, err, NoticeRateLimited)
	case errors.Is(err, oracle.ErrTimeout):
		e.log.Warn("oracle timeout", "conversation", snap.ID, "timeout", e.timeout)
		return e.fail(snap, err, NoticeTimeout)
	}
	e.log.Error("oracle call failed", "conversation", snap.ID, "error", err)
	return e.fail(snap, err, NoticeUnavailable)
}

// fail 追加一条系统提示；需求记录和配置单保持不变
func (e *Engine) fail(snap Snapshot, err error, notice string) turnOutcome {
	msg := Message{ID: e.newID(), Role: RoleSystem, Content: notice, CreatedAt: e.now()}
	snap.Messages = append(snap.Messages, msg)
	snap.UpdatedAt = msg.CreatedAt
	return turnOutcome{
		TurnResult: &TurnResult{
			Messages: []Message{msg},
			State:    snap.State,
			Record:   snap.Record,
			Build:    snap.Build,
			Failure:  err,
		},
		snapshot: snap,
	}
}

// history 系统提示不进入模型历史
func history(messages []Message, text string) []oracle.Message {
	out := make([]oracle.Message, 0, len(messages)+1)
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, oracle.Message{Role: oracle.RoleUser, Content: m.Content})
		case RoleAssistant:
			out = append(out, oracle.Message{Role: oracle.RoleAssistant, Content: m.Content})
		}
	}
	return append(out, oracle.Message{Role: oracle.RoleUser, Content: text})
}
