package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pcbuild/internal/cache"
	"pcbuild/internal/catalog"
	"pcbuild/internal/engine"
	"pcbuild/internal/model"
	"pcbuild/internal/oracle"
	"pcbuild/internal/repository"
	"pcbuild/pkg/jwt"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Tables()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type step struct {
	raw string
	err error
}

type scriptedOracle struct {
	mu    sync.Mutex
	steps []step
}

func (o *scriptedOracle) CompleteConversation(ctx context.Context, req *oracle.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.steps) == 0 {
		return "", errors.New("script exhausted")
	}
	s := o.steps[0]
	o.steps = o.steps[1:]
	return s.raw, s.err
}

type staticSource []model.Component

func (s staticSource) All(ctx context.Context) ([]model.Component, error) {
	return s, nil
}

func testCatalog() *catalog.Cache {
	var items staticSource
	for _, cat := range catalog.Categories {
		for i := 1; i <= 5; i++ {
			items = append(items, model.Component{
				ID:       cat + "-" + strconv.Itoa(i),
				Name:     fmt.Sprintf("%s model %d", cat, i),
				Price:    float64(i * 100),
				Category: cat,
			})
		}
	}
	return catalog.NewCache(items, catalog.Options{}, nil)
}

type fixture struct {
	chat  *ChatService
	build *BuildService
	users *UserService
	db    *gorm.DB
	store *cache.MemoryCache
}

func newFixture(t *testing.T, o oracle.Oracle) *fixture {
	db := newTestDB(t)
	store := cache.NewMemoryCache(time.Hour)
	builds := NewBuildService(repository.NewBuildRepository(db))
	users := NewUserService(repository.NewUserRepository(db))
	eng := engine.New(o, testCatalog())
	return &fixture{
		chat:  NewChatService(eng, repository.NewConversationRepository(db), repository.NewMessageRepository(db), builds, users, store, nil, 0),
		build: builds,
		users: users,
		db:    db,
		store: store,
	}
}

func TestAuthService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := cache.NewMemoryCache(time.Hour)
	tokens := jwt.NewJWTService("a-test-secret-that-is-long-enough!", time.Minute, time.Hour)
	auth := NewAuthService(repository.NewUserRepository(db), store, tokens)

	reg, err := auth.Register(ctx, &RegisterRequest{Username: "ana", Password: "secret123", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, reg.UserID)

	_, err = auth.Register(ctx, &RegisterRequest{Username: "ana", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = auth.Register(ctx, &RegisterRequest{Username: "bia", Password: "secret123", Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = auth.Login(ctx, &LoginRequest{Username: "ana", Password: "wrong"})
	assert.ErrorIs(t, err, ErrPasswordWrong)
	_, err = auth.Login(ctx, &LoginRequest{Username: "nobody", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	login, err := auth.Login(ctx, &LoginRequest{Username: "ana", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, int64(60), login.ExpiresIn)
	claims, err := tokens.ValidateAccessToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, claims.UserID)

	refreshed, err := auth.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// 访问令牌不能用来刷新
	_, err = auth.RefreshToken(ctx, login.AccessToken)
	assert.Error(t, err)

	require.NoError(t, auth.Logout(ctx, login.RefreshToken, time.Now().Add(time.Hour)))
	_, err = auth.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	auth := NewAuthService(repository.NewUserRepository(db), cache.NewMemoryCache(time.Hour),
		jwt.NewJWTService("a-test-secret-that-is-long-enough!", time.Minute, time.Hour))
	users := NewUserService(repository.NewUserRepository(db))

	ana, err := auth.Register(ctx, &RegisterRequest{Username: "ana", Password: "secret123", Email: "ana@example.com"})
	require.NoError(t, err)
	_, err = auth.Register(ctx, &RegisterRequest{Username: "bia", Password: "secret123", Email: "bia@example.com"})
	require.NoError(t, err)

	taken := "bia@example.com"
	_, err = users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailExists)

	// 保持自己的邮箱不算冲突
	own := "ana@example.com"
	u, err := users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{Email: &own})
	require.NoError(t, err)
	require.NotNil(t, u.Email)
	assert.Equal(t, own, *u.Email)

	empty := " "
	u, err = users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{Email: &empty})
	require.NoError(t, err)
	assert.Nil(t, u.Email)

	err = users.ChangePassword(ctx, ana.UserID, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "another1"})
	assert.ErrorIs(t, err, ErrPasswordWrong)
	require.NoError(t, users.ChangePassword(ctx, ana.UserID, &ChangePasswordRequest{OldPassword: "secret123", NewPassword: "another1"}))
	_, err = auth.Login(ctx, &LoginRequest{Username: "ana", Password: "another1"})
	assert.NoError(t, err)

	_, err = users.GetProfile(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	budget := "R$ 4.500,00"
	u, err = users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{DefaultBudget: &budget})
	require.NoError(t, err)
	require.NotNil(t, u.DefaultBudget)
	assert.Equal(t, 4500.0, *u.DefaultBudget)

	rangeAnswer := "3000 a 4000"
	_, err = users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{DefaultBudget: &rangeAnswer})
	assert.ErrorIs(t, err, ErrInvalidInput)

	rec, err := users.DefaultRecord(ctx, ana.UserID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 4500.0, rec.BudgetValue())

	zero := "0"
	u, err = users.UpdateProfile(ctx, ana.UserID, &UpdateProfileRequest{DefaultBudget: &zero})
	require.NoError(t, err)
	assert.Nil(t, u.DefaultBudget)
	rec, err = users.DefaultRecord(ctx, ana.UserID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProfileActivityAndDefaultBudget(t *testing.T) {
	o := &scriptedOracle{steps: []step{
		{raw: `{"aiResponseText":"Done.","preferences":{"pcProfile":{"purpose":"office"}},"complete":true,
			"recommendedComponentIds":["processor-1"]}`},
	}}
	f := newFixture(t, o)
	ctx := context.Background()

	user := &model.User{Username: "caio", PasswordHash: "x", Status: model.UserStatusActive}
	require.NoError(t, repository.NewUserRepository(f.db).Create(ctx, user))

	profile, err := f.users.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "caio", profile.Username)
	assert.Equal(t, repository.UserActivity{}, profile.Activity)

	budget := "6 mil"
	_, err = f.users.UpdateProfile(ctx, user.ID, &UpdateProfileRequest{DefaultBudget: &budget})
	require.NoError(t, err)

	// 新对话带上默认预算，不再从预算问题开始
	conv, err := f.chat.Start(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, conv.Record.BudgetValue())

	open, err := f.chat.Start(ctx, user.ID, nil)
	require.NoError(t, err)

	turn, err := f.chat.Send(ctx, user.ID, conv.ID, "an office pc")
	require.NoError(t, err)
	require.Equal(t, engine.StateComplete, turn.State)

	profile, err = f.users.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), profile.Activity.Conversations)
	assert.Equal(t, int64(1), profile.Activity.OpenConversations)
	assert.Equal(t, int64(1), profile.Activity.Builds)
	assert.NotNil(t, profile.Activity.LastBuildAt)
	assert.NotEmpty(t, open.ID)
}

func TestChatServiceConversation(t *testing.T) {
	o := &scriptedOracle{steps: []step{
		{raw: `{"aiResponseText":"May I use your location?","preferences":{"pcProfile":{"purpose":"gaming"}},"action":"request_location"}`},
		{raw: `{"aiResponseText":"No problem.","preferences":{"budget":5000}}`},
		{raw: `{"aiResponseText":"Final build.","preferences":{},"complete":true,
			"recommendedComponentIds":["processor-3","gpu-4","ghost-1"]}`},
	}}
	f := newFixture(t, o)
	ctx := context.Background()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := f.store.Subscribe(subCtx)
	require.NoError(t, err)

	conv, err := f.chat.Start(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StateCollecting, conv.State)

	turn, err := f.chat.Send(ctx, 1, conv.ID, "I want a gaming PC")
	require.NoError(t, err)
	assert.True(t, turn.AwaitingConsent)
	assert.Equal(t, engine.StateAwaitingSideChannel, turn.State)

	select {
	case ev := <-events:
		assert.Equal(t, EventTurn, ev.Type)
		assert.Equal(t, int64(1), ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("no turn event published")
	}

	_, err = f.chat.Send(ctx, 1, conv.ID, "hello?")
	assert.ErrorIs(t, err, engine.ErrAwaitingConsent)

	turn, err = f.chat.ResolveConsent(ctx, 1, conv.ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateCollecting, turn.State)
	assert.Equal(t, "I prefer not to share my location.", turn.Messages[0].Content)

	_, err = f.chat.ResolveConsent(ctx, 1, conv.ID, true, "")
	assert.ErrorIs(t, err, engine.ErrNoPendingConsent)

	turn, err = f.chat.Send(ctx, 1, conv.ID, "that is all")
	require.NoError(t, err)
	assert.Equal(t, engine.StateComplete, turn.State)
	assert.Equal(t, []string{"ghost-1"}, turn.Unresolved)
	require.NotNil(t, turn.BuildID)

	// 丢弃缓存后从数据库重建
	require.NoError(t, f.store.DeleteSnapshot(ctx, conv.ID))
	got, err := f.chat.Get(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateComplete, got.State)
	require.Len(t, got.Messages, 6)
	for i, m := range got.Messages {
		if i%2 == 0 {
			assert.Equal(t, engine.RoleUser, m.Role)
		} else {
			assert.Equal(t, engine.RoleAssistant, m.Role)
		}
	}
	assert.Equal(t, "I prefer not to share my location.", got.Messages[2].Content)
	require.NotNil(t, got.Build)
	assert.Equal(t, 700.0, got.Build.TotalPrice)
	assert.Equal(t, 5000.0, got.Record.BudgetValue())
	assert.Equal(t, *turn.BuildID, *got.BuildID)

	_, err = f.chat.Send(ctx, 1, conv.ID, "one more")
	assert.ErrorIs(t, err, engine.ErrClosed)

	saved, err := f.build.Get(ctx, 1, *turn.BuildID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, saved.ConversationID)
	assert.Len(t, saved.Components, 2)
	assert.Contains(t, saved.Name, "Gaming PC")

	// 以保存的配置单为起点开始新对话
	again, err := f.chat.Start(ctx, 1, &StartRequest{FromBuildID: saved.ID})
	require.NoError(t, err)
	assert.Equal(t, "gaming", again.Record.PCProfile.Purpose)
	assert.Equal(t, 5000.0, again.Record.BudgetValue())

	_, err = f.chat.Start(ctx, 2, &StartRequest{FromBuildID: saved.ID})
	assert.ErrorIs(t, err, ErrBuildNotFound)

	list, err := f.chat.List(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	counts := map[string]int64{}
	for _, c := range list.Conversations {
		counts[c.ID] = c.Messages
	}
	assert.Equal(t, map[string]int64{conv.ID: 6, again.ID: 0}, counts)

	page, err := f.chat.Messages(ctx, 1, conv.ID, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Total)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "that is all", page.Messages[0].Content)
	assert.Equal(t, engine.RoleAssistant, page.Messages[1].Role)

	_, err = f.chat.Messages(ctx, 2, conv.ID, 1, 10)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestChatServiceRecoverableFailure(t *testing.T) {
	o := &scriptedOracle{steps: []step{
		{err: fmt.Errorf("%w: 429", oracle.ErrRateLimited)},
		{raw: `{"aiResponseText":"Hi again","preferences":{}}`},
	}}
	f := newFixture(t, o)
	ctx := context.Background()

	conv, err := f.chat.Start(ctx, 1, nil)
	require.NoError(t, err)

	turn, err := f.chat.Send(ctx, 1, conv.ID, "hello")
	assert.ErrorIs(t, err, oracle.ErrRateLimited)
	require.NotNil(t, turn)
	require.Len(t, turn.Messages, 1)
	assert.Equal(t, engine.RoleSystem, turn.Messages[0].Role)
	assert.NotEmpty(t, turn.Error)

	turn, err = f.chat.Send(ctx, 1, conv.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi again", turn.Messages[1].Content)

	require.NoError(t, f.store.DeleteSnapshot(ctx, conv.ID))
	got, err := f.chat.Get(ctx, 1, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, engine.RoleSystem, got.Messages[0].Role)
}

func TestChatServiceTurnLockAndOwnership(t *testing.T) {
	o := &scriptedOracle{steps: []step{{raw: `{"aiResponseText":"ok","preferences":{}}`}}}
	f := newFixture(t, o)
	ctx := context.Background()

	conv, err := f.chat.Start(ctx, 1, nil)
	require.NoError(t, err)

	// 另一个实例正在处理这个会话
	token, ok, err := f.store.AcquireTurn(ctx, conv.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.chat.Send(ctx, 1, conv.ID, "hi")
	assert.ErrorIs(t, err, engine.ErrBusy)

	require.NoError(t, f.store.ReleaseTurn(ctx, conv.ID, token))
	_, err = f.chat.Send(ctx, 1, conv.ID, "hi")
	require.NoError(t, err)

	_, err = f.chat.Get(ctx, 2, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = f.chat.Send(ctx, 2, conv.ID, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// 还没有配置单
	_, err = f.chat.SaveBuild(ctx, 1, conv.ID, "mine")
	assert.ErrorIs(t, err, ErrBuildNotReady)

	require.NoError(t, f.chat.Delete(ctx, 1, conv.ID))
	_, err = f.chat.Get(ctx, 1, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestBuildServiceManualSave(t *testing.T) {
	o := &scriptedOracle{steps: []step{
		{raw: `{"aiResponseText":"A first idea.","preferences":{"pcProfile":{"purpose":"video editing"}},
			"recommendedComponentIds":["memory-2"],"totalPrice":250}`},
	}}
	f := newFixture(t, o)
	ctx := context.Background()

	conv, err := f.chat.Start(ctx, 1, nil)
	require.NoError(t, err)
	_, err = f.chat.Send(ctx, 1, conv.ID, "something for editing")
	require.NoError(t, err)

	saved, err := f.chat.SaveBuild(ctx, 1, conv.ID, "  Editing rig  ")
	require.NoError(t, err)
	assert.Equal(t, "Editing rig", saved.Name)
	assert.Equal(t, 250.0, saved.TotalPrice)

	renamed, err := f.build.Rename(ctx, 1, saved.ID, "Studio")
	require.NoError(t, err)
	assert.Equal(t, "Studio", renamed.Name)
	_, err = f.build.Rename(ctx, 1, saved.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := f.build.List(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Builds, 1)
	assert.Equal(t, 1, list.Builds[0].Parts)

	_, err = f.build.Get(ctx, 2, saved.ID)
	assert.ErrorIs(t, err, ErrBuildNotFound)
	require.NoError(t, f.build.Delete(ctx, 1, saved.ID))
	_, err = f.build.Get(ctx, 1, saved.ID)
	assert.ErrorIs(t, err, ErrBuildNotFound)
}

func TestCatalogService(t *testing.T) {
	svc := NewCatalogService(testCatalog())
	ctx := context.Background()

	all, err := svc.Preview(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 40, all.Total)
	assert.Len(t, all.Components, 40)
	assert.Zero(t, all.Budget)

	budgeted, err := svc.Preview(ctx, "R$ 5.000,00")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, budgeted.Budget)
	assert.NotEmpty(t, budgeted.Components)

	c, err := svc.Component(ctx, "gpu-2")
	require.NoError(t, err)
	assert.Equal(t, 200.0, c.Price)
	_, err = svc.Component(ctx, "nope")
	assert.ErrorIs(t, err, ErrComponentNotFound)

	n, err := svc.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}
