package lims

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	cache := NewRedisCache(client, "", time.Minute)

	_, tokA, ok, err := cache.Get(ctx, "agencies", 1, "http://a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, tokB, _, err := cache.Get(ctx, "agencies", 1, "http://b")
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "agencies", 1, "http://a", tokA, []byte(`{"id":1}`)))
	require.NoError(t, cache.Set(ctx, "agencies", 1, "http://b", tokB, []byte(`{"id":1,"b":true}`)))

	got, _, ok, err := cache.Get(ctx, "agencies", 1, "http://b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1,"b":true}`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("lims:view:agencies:1"))

	require.NoError(t, cache.Invalidate(ctx, "agencies", 1))
	_, _, ok, _ = cache.Get(ctx, "agencies", 1, "http://a")
	assert.False(t, ok)
}

func TestRedisCacheRejectsStaleSet(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestRedis(t)
	cache := NewRedisCache(client, "", time.Minute)

	// A reader misses, a writer invalidates, then the reader tries to fill.
	_, tok, _, err := cache.Get(ctx, "agencies", 1, "o")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "agencies", 1))
	require.NoError(t, cache.Set(ctx, "agencies", 1, "o", tok, []byte("stale")))

	_, fresh, ok, err := cache.Get(ctx, "agencies", 1, "o")
	require.NoError(t, err)
	assert.False(t, ok)

	// Flushes also void outstanding tokens, even for resources never cached.
	_, tok, _, err = cache.Get(ctx, "batches", 2, "o")
	require.NoError(t, err)
	require.NoError(t, cache.Flush(ctx))
	require.NoError(t, cache.Set(ctx, "batches", 2, "o", tok, []byte("stale")))
	_, _, ok, err = cache.Get(ctx, "batches", 2, "o")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "agencies", 1, "o", fresh, []byte("fresh")))
	_, _, ok, _ = cache.Get(ctx, "agencies", 1, "o")
	assert.False(t, ok, "token issued before the flush is stale too")
}

func TestRedisCacheFlushKeepsOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	cache := NewRedisCache(client, "", 0)

	require.NoError(t, cache.Set(ctx, "agencies", 1, "o", "/", []byte("a")))
	require.NoError(t, cache.Set(ctx, "batches", 2, "o", "/", []byte("b")))
	require.NoError(t, mr.Set("unrelated", "keep"))
	assert.True(t, mr.Exists("lims:view:agencies:1"))

	require.NoError(t, cache.Flush(ctx))
	assert.False(t, mr.Exists("lims:view:agencies:1"))
	assert.False(t, mr.Exists("lims:view:batches:2"))
	assert.True(t, mr.Exists("unrelated"))

	require.NoError(t, cache.Flush(ctx))
}

func TestViewCacheInvalidatedOnWrite(t *testing.T) {
	client, mr := setupTestRedis(t)
	f := newFixture(t, WithCache(NewRedisCache(client, "", time.Minute)))

	agency := f.create("/api/v1/agencies", map[string]interface{}{"name": "LabCo"})
	assert.Equal(t, "LabCo", f.getJSON(agency)["name"])
	assert.True(t, mr.Exists("lims:view:agencies:1"))

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, agency, map[string]interface{}{"name": "LabCo2"}).Code)
	assert.Empty(t, mr.HGet("lims:view:agencies:1", testOrigin))
	assert.Equal(t, "LabCo2", f.getJSON(agency)["name"])

	project := f.create("/api/v1/projects", map[string]interface{}{"name": "P"})
	batch := f.create("/api/v1/batches", map[string]interface{}{"express_num": "1", "agency_id": 1, "project_id": 1})
	assert.Equal(t, testOrigin+project, f.getJSON(batch)["project_url"])

	// Deleting the project nulls batch.project_id, so the cached batch goes too.
	require.Equal(t, http.StatusOK, f.do(http.MethodDelete, project, nil).Code)
	assert.Equal(t, "", f.getJSON(batch)["project_url"])
}

func TestViewServedFromCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisCache(client, "", time.Minute)
	f := newFixture(t, WithCache(cache))

	agency := f.create("/api/v1/agencies", map[string]interface{}{"name": "LabCo"})
	_, tok, _, err := cache.Get(context.Background(), "agencies", 1, testOrigin)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), "agencies", 1, testOrigin, tok, []byte(`{"id":1,"name":"cached"}`)))
	assert.Equal(t, "cached", f.getJSON(agency)["name"])
}

func TestViewBypassesCacheWithoutPublicOrigin(t *testing.T) {
	client, mr := setupTestRedis(t)
	f := newFixture(t, WithCache(NewRedisCache(client, "", time.Minute)))
	f.router = NewRouter(NewHandler(f.service, ""), RouterOptions{})

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/agencies", map[string]interface{}{"name": "LabCo"}).Code)
	assert.Equal(t, "LabCo", f.getJSON("/api/v1/agencies/1")["name"])
	assert.False(t, mr.Exists("lims:view:agencies:1"))
}
