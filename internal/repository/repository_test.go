package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pcbuild/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Tables()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	u := &model.User{Username: "ana", PasswordHash: "x", Email: strPtr("ana@example.com"), Status: model.UserStatusActive}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)

	got, err := repo.GetByUsername(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := repo.ExistsByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail(ctx, "ana@example.com", u.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = repo.ExistsByEmail(ctx, "ana@example.com", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.UpdateFields(ctx, u.ID, map[string]interface{}{"email": "a@b.c"}))
	got, _ = repo.GetByID(ctx, u.ID)
	assert.Equal(t, "a@b.c", *got.Email)
}

func TestUserActivity(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	convs := NewConversationRepository(db)
	builds := NewBuildRepository(db)
	ctx := context.Background()

	empty, err := users.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, UserActivity{}, *empty)

	states := map[string]string{
		"c1": model.ConversationStateCollecting,
		"c2": model.ConversationStateComplete,
		"c3": model.ConversationStateFailed,
	}
	for id, state := range states {
		require.NoError(t, convs.Create(ctx, &model.Conversation{ID: id, UserID: 1, State: state, Record: datatypes.JSON(`{}`)}))
	}
	require.NoError(t, convs.Create(ctx, &model.Conversation{ID: "other", UserID: 2, State: model.ConversationStateCollecting, Record: datatypes.JSON(`{}`)}))

	last := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{last.Add(-48 * time.Hour), last} {
		require.NoError(t, builds.Create(ctx, &model.Build{
			ID:             fmt.Sprintf("b%d", i),
			UserID:         1,
			ConversationID: "c2",
			Name:           "Office",
			Components:     datatypes.JSON(`[]`),
			Record:         datatypes.JSON(`{}`),
			Warnings:       datatypes.JSON(`[]`),
			CreatedAt:      at,
		}))
	}

	a, err := users.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Conversations)
	assert.Equal(t, int64(1), a.OpenConversations)
	assert.Equal(t, int64(2), a.Builds)
	require.NotNil(t, a.LastBuildAt)
	assert.True(t, a.LastBuildAt.Equal(last), "last build at %v", a.LastBuildAt)
}

func TestComponentRepository(t *testing.T) {
	repo := NewComponentRepository(newTestDB(t))
	ctx := context.Background()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	items := []model.Component{
		{ID: "gpu-1", Name: "RTX 4060", Price: 1899, Category: "gpu"},
		{ID: "cpu-1", Name: "Ryzen 5 7600", Price: 1199, Category: "processor"},
		{ID: "cpu-2", Name: "Core i5-14400F", Price: 999, Category: "processor", Brand: strPtr("Intel")},
	}
	require.NoError(t, repo.UpsertBatch(ctx, items))

	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// 再次导入同一 ID 会更新价格
	require.NoError(t, repo.UpsertBatch(ctx, []model.Component{
		{ID: "gpu-1", Name: "RTX 4060", Price: 1799, Category: "gpu"},
	}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gpu-1", all[0].ID)
	assert.Equal(t, 1799.0, all[0].Price)
	assert.Equal(t, "cpu-2", all[1].ID)
	assert.Equal(t, "cpu-1", all[2].ID)

	require.NoError(t, repo.UpsertBatch(ctx, nil))
}

func TestConversationRepository(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	conv := &model.Conversation{
		ID:     "c1",
		UserID: 1,
		State:  model.ConversationStateCollecting,
		Record: datatypes.JSON(`{}`),
	}
	require.NoError(t, convs.Create(ctx, conv))
	require.NoError(t, convs.Create(ctx, &model.Conversation{ID: "c2", UserID: 1, State: model.ConversationStateCollecting, Record: datatypes.JSON(`{}`)}))
	require.NoError(t, convs.Create(ctx, &model.Conversation{ID: "c3", UserID: 2, State: model.ConversationStateCollecting, Record: datatypes.JSON(`{}`)}))

	now := time.Now().UTC().Truncate(time.Second)
	conv.State = model.ConversationStateAwaitingSideChannel
	conv.Record = datatypes.JSON(`{"budget":5000}`)
	conv.PendingAction = "request_location"
	conv.UpdatedAt = now
	require.NoError(t, convs.SaveTurn(ctx, conv, []model.Message{
		{ID: "m2", ConversationID: "c1", Role: model.MessageRoleAssistant, Content: "budget noted", Seq: 1, CreatedAt: now},
		{ID: "m1", ConversationID: "c1", Role: model.MessageRoleUser, Content: "5000", Seq: 0, CreatedAt: now},
	}))

	got, err := convs.GetByIDWithMessages(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ConversationStateAwaitingSideChannel, got.State)
	assert.Equal(t, "request_location", got.PendingAction)
	assert.JSONEq(t, `{"budget":5000}`, string(got.Record))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m1", got.Messages[0].ID)
	assert.Equal(t, "m2", got.Messages[1].ID)

	count, err := msgs.CountByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	page, total, err := msgs.ListPage(ctx, "c1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, "m2", page[0].ID)

	list, total, err := convs.ListByUser(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	require.NoError(t, convs.AttachBuild(ctx, "c1", "b1"))
	got, _ = convs.GetByID(ctx, "c1")
	require.NotNil(t, got.BuildID)
	assert.Equal(t, "b1", *got.BuildID)

	require.NoError(t, convs.Delete(ctx, "c1"))
	got, err = convs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
	count, err = msgs.CountByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBuildRepository(t *testing.T) {
	repo := NewBuildRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.Build{
			ID:             fmt.Sprintf("b%d", i),
			UserID:         1,
			ConversationID: fmt.Sprintf("c%d", i),
			Name:           fmt.Sprintf("Build %d", i),
			Components:     datatypes.JSON(`[]`),
			Record:         datatypes.JSON(`{}`),
			Warnings:       datatypes.JSON(`[]`),
			TotalPrice:     float64(i * 1000),
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	list, total, err := repo.ListByUser(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Equal(t, "b3", list[0].ID)

	require.NoError(t, repo.UpdateName(ctx, "b2", "Streaming rig"))
	b, _ := repo.GetByID(ctx, "b2")
	assert.Equal(t, "Streaming rig", b.Name)

	require.NoError(t, repo.Delete(ctx, "b2"))
	b, err = repo.GetByID(ctx, "b2")
	require.NoError(t, err)
	assert.Nil(t, b)
}
