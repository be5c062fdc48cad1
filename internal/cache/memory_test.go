package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbuild/internal/engine"
	"pcbuild/internal/preference"
)

func newClockedCache(ttl time.Duration) (*MemoryCache, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, now := newClockedCache(time.Hour)
	ctx := context.Background()

	snap, err := c.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	in := engine.Snapshot{
		ID:       "c1",
		State:    engine.StateAwaitingSideChannel,
		Record:   preference.Record{Budget: preference.NewAmount(4200)},
		Messages: []engine.Message{{ID: "m1", Role: engine.RoleUser, Content: "oi"}},
	}
	require.NoError(t, c.SaveSnapshot(ctx, in))

	out, err := c.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, engine.StateAwaitingSideChannel, out.State)
	assert.Equal(t, 4200.0, out.Record.BudgetValue())
	require.Len(t, out.Messages, 1)

	*now = now.Add(2 * time.Hour)
	out, err = c.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, out)

	require.NoError(t, c.SaveSnapshot(ctx, in))
	require.NoError(t, c.DeleteSnapshot(ctx, "c1"))
	out, _ = c.LoadSnapshot(ctx, "c1")
	assert.Nil(t, out)
}

func TestTurnLock(t *testing.T) {
	c, now := newClockedCache(0)
	ctx := context.Background()

	t1, ok, err := c.AcquireTurn(ctx, "c1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, t1)

	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.False(t, ok)

	_, ok, _ = c.AcquireTurn(ctx, "c2", time.Minute)
	assert.True(t, ok)

	// 令牌不匹配时不释放
	require.NoError(t, c.ReleaseTurn(ctx, "c1", "someone-else"))
	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseTurn(ctx, "c1", t1))
	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.True(t, ok)

	// 锁过期后自动释放
	*now = now.Add(2 * time.Minute)
	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.True(t, ok)
}

func TestExpiredTurnLockHolderCannotReleaseNewLock(t *testing.T) {
	c, now := newClockedCache(0)
	ctx := context.Background()

	slow, ok, err := c.AcquireTurn(ctx, "c1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 第一轮超时，另一个实例拿到锁
	*now = now.Add(2 * time.Minute)
	fresh, ok, err := c.AcquireTurn(ctx, "c1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, slow, fresh)

	// 超时的一轮结束时释放自己的锁，不影响新锁
	require.NoError(t, c.ReleaseTurn(ctx, "c1", slow))
	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseTurn(ctx, "c1", fresh))
	_, ok, _ = c.AcquireTurn(ctx, "c1", time.Minute)
	assert.True(t, ok)
}

func TestTokenBlacklist(t *testing.T) {
	c, now := newClockedCache(0)
	ctx := context.Background()

	require.NoError(t, c.BlacklistToken(ctx, "abc", now.Add(time.Hour)))
	require.NoError(t, c.BlacklistToken(ctx, "old", now.Add(-time.Hour)))
	assert.True(t, c.IsTokenBlacklisted(ctx, "abc"))
	assert.False(t, c.IsTokenBlacklisted(ctx, "old"))

	*now = now.Add(2 * time.Hour)
	assert.False(t, c.IsTokenBlacklisted(ctx, "abc"))
}

func TestPublishSubscribe(t *testing.T) {
	c := NewMemoryCache(0)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := c.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, Event{UserID: 7, Payload: json.RawMessage(`{"type":"turn"}`)}))

	select {
	case ev := <-events:
		assert.Equal(t, int64(7), ev.UserID)
		assert.JSONEq(t, `{"type":"turn"}`, string(ev.Payload))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	_, open := <-events
	assert.False(t, open)
}
