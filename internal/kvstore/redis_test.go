package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client), mr
}

func TestGetSet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// Structs are stored as JSON.
	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, store.Set(ctx, "j", payload{Name: "api"}, time.Hour))
	got, err = store.Get(ctx, "j")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"api"}`, string(got))

	ttl := mr.TTL("j")
	assert.Equal(t, time.Hour, ttl)
}

func TestListOps(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.LPush(ctx, "l", "a"))
	require.NoError(t, store.LPush(ctx, "l", "b"))
	require.NoError(t, store.LPush(ctx, "l", "c"))

	items, err := store.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, items)

	require.NoError(t, store.LTrim(ctx, "l", 0, 1))
	n, err := store.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, err := store.RPop(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = store.RPop(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHashOps(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "h", "total", "1"))
	n, err := store.HIncrBy(ctx, "h", "total", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	v, err := store.HGet(ctx, "h", "total")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	_, err = store.HGet(ctx, "h", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"total": "3"}, all)
}

func TestSortedSetByScore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := float64(1_700_000_000)
	require.NoError(t, store.ZAdd(ctx, "deploys", base, "v1.0.0"))
	require.NoError(t, store.ZAdd(ctx, "deploys", base+600, "v1.1.0"))
	require.NoError(t, store.ZAdd(ctx, "deploys", base+1200, "v1.2.0"))

	members, err := store.ZRangeByScore(ctx, "deploys", base+300, base+1300)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.1.0", "v1.2.0"}, members)

	require.NoError(t, store.ZRemRangeByScore(ctx, "deploys", 0, base))
	members, err = store.ZRangeByScore(ctx, "deploys", 0, base+1300)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestScan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "baseline:api:latency", "1", 0))
	require.NoError(t, store.Set(ctx, "baseline:api:cpu", "1", 0))
	require.NoError(t, store.Set(ctx, "action:123", "1", 0))

	keys, err := store.Scan(ctx, "baseline:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
