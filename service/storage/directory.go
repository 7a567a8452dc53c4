package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// directory key: wp:sock:<socketID>
// value: instanceID
func sockKey(socketID string) string { return "wp:sock:" + socketID }

type RedisDirectory struct {
	rdb *redis.Client
}

func NewRedisDirectory(rdb *redis.Client) *RedisDirectory {
	return &RedisDirectory{rdb: rdb}
}

func (d *RedisDirectory) RegisterOwner(ctx context.Context, socketID, instanceID string) error {
	// 覆盖写：同一 socket 身份重新注册时顶掉脏条目
	return d.rdb.Set(ctx, sockKey(socketID), instanceID, 0).Err()
}

func (d *RedisDirectory) ResolveOwner(ctx context.Context, socketID string) (string, bool, error) {
	val, err := d.rdb.Get(ctx, sockKey(socketID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "directory resolve")
	}
	return val, true, nil
}

func (d *RedisDirectory) Unregister(ctx context.Context, socketID string) error {
	return d.rdb.Del(ctx, sockKey(socketID)).Err()
}
