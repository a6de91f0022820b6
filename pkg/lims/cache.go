package lims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores rendered single-resource views. Entries for one resource are
// grouped so an update drops every origin's rendering at once.
//
// Get hands out a token on a miss. Set stores the view only if the entry has
// not been invalidated or flushed since that token was issued, so a reader
// racing a writer cannot put a stale view back.
type Cache interface {
	Get(ctx context.Context, collection string, id uint, origin string) (view []byte, token string, ok bool, err error)
	Set(ctx context.Context, collection string, id uint, origin, token string, view []byte) error
	Invalidate(ctx context.Context, collection string, id uint) error
	// Flush drops every entry. Deletes use it because SET NULL cascades
	// change views of other resources.
	Flush(ctx context.Context) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, uint, string) ([]byte, string, bool, error) {
	return nil, "", false, nil
}
func (nopCache) Set(context.Context, string, uint, string, string, []byte) error { return nil }
func (nopCache) Invalidate(context.Context, string, uint) error                  { return nil }
func (nopCache) Flush(context.Context) error                                     { return nil }

// versionField holds the invalidation token inside each resource hash.
const versionField = "_v"

// RedisCache keeps one hash per resource, keyed by origin, plus an epoch key
// that changes on every flush.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "lims:view:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(collection string, id uint) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, collection, id)
}

func (c *RedisCache) epochKey() string {
	return c.prefix + "epoch"
}

func (c *RedisCache) Get(ctx context.Context, collection string, id uint, origin string) ([]byte, string, bool, error) {
	key := c.key(collection, id)
	pipe := c.client.Pipeline()
	view := pipe.HGet(ctx, key, origin)
	version := pipe.HGet(ctx, key, versionField)
	epoch := pipe.Get(ctx, c.epochKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", false, err
	}
	if b, err := view.Bytes(); err == nil {
		return b, "", true, nil
	}
	return nil, cacheToken(epoch.Val(), version.Val()), false, nil
}

func cacheToken(epoch, version string) string {
	return epoch + "/" + version
}

func (c *RedisCache) Set(ctx context.Context, collection string, id uint, origin, tok string, view []byte) error {
	key := c.key(collection, id)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		epoch, err := tx.Get(ctx, c.epochKey()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		version, err := tx.HGet(ctx, key, versionField).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cacheToken(epoch, version) != tok {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, origin, view)
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		return err
	}, key, c.epochKey())
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate drops every rendering of one resource and rotates its version.
func (c *RedisCache) Invalidate(ctx context.Context, collection string, id uint) error {
	key := c.key(collection, id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, versionField, uuid.NewString())
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	return err
}

func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if iter.Val() != c.epochKey() {
			keys = append(keys, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Set(ctx, c.epochKey(), uuid.NewString(), 0)
		return nil
	})
	return err
}
