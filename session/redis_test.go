package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/slotflow/core"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := core.NewSession("s1")
	sess.AppendTurn(core.NewUserTurn("calculate the incidence rate"))
	ws := sess.WorkflowState()
	ws.WorkflowID = "incidence_rate"
	ws.CurrentStage = "facility_level"
	ws.Select("facility_level", "primary")

	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	require.Len(t, got.Turns(), 1)
	assert.Equal(t, "calculate the incidence rate", got.Turns()[0].Content)

	gotWS := got.WorkflowState()
	assert.Equal(t, "incidence_rate", gotWS.WorkflowID)
	assert.Equal(t, "facility_level", gotWS.CurrentStage)
	v, ok := gotWS.Selected("facility_level")
	require.True(t, ok)
	assert.Equal(t, "primary", v)
}

func TestRedisStoreGetNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisStoreClear(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, core.NewSession("s1")))
	require.NoError(t, store.Clear(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisStorePutRefreshesTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, core.NewSession("s1")))
	require.NoError(t, store.Put(ctx, core.NewSession("s1")))
	assert.Greater(t, mr.TTL(keyPrefix+"s1"), time.Duration(0))

	mr.FastForward(2 * time.Hour)
	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	err = store.Put(ctx, core.NewSession("s1"))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	err = store.Clear(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}
