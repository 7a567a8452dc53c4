package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// group key: wp:group:<name>
// hash: owner -> socketID, <memberSocketID> -> instanceID
func groupKey(group string) string { return "wp:group:" + group }

// ===== Lua 脚本 =====

// 原子建组（set-if-absent，关掉先查后建的并发窗口）
// KEYS[1] = group key
// ARGV[1] = owner socketID
// ARGV[2] = owner instanceID
// 返回：1 建组成功；0 组已存在（不改动既有记录）
const luaCreateGroup = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "owner", ARGV[1], ARGV[1], ARGV[2])
return 1
`

// owner 校验 + 删组，单脚本内完成，失败分支不产生任何写
// KEYS[1] = group key
// ARGV[1] = requester socketID
// 返回：1 删除成功；0 组不存在；-1 requester 不是 owner
const luaDeleteGroup = `
local owner = redis.call("HGET", KEYS[1], "owner")
if not owner then
  return 0
end
if owner ~= ARGV[1] then
  return -1
end
redis.call("DEL", KEYS[1])
return 1
`

var (
	createGroupScript = redis.NewScript(luaCreateGroup)
	deleteGroupScript = redis.NewScript(luaDeleteGroup)
)

type RedisGroupStore struct {
	rdb *redis.Client
}

func NewRedisGroupStore(rdb *redis.Client) *RedisGroupStore {
	return &RedisGroupStore{rdb: rdb}
}

func (s *RedisGroupStore) Create(ctx context.Context, group, owner, instanceID string) error {
	n, err := createGroupScript.Run(ctx, s.rdb, []string{groupKey(group)}, owner, instanceID).Int()
	if err != nil {
		return errors.Wrap(err, "group create")
	}
	if n == 0 {
		return ErrGroupExists.WithDetail(group)
	}
	return nil
}

func (s *RedisGroupStore) Delete(ctx context.Context, group, requester string) error {
	n, err := deleteGroupScript.Run(ctx, s.rdb, []string{groupKey(group)}, requester).Int()
	if err != nil {
		return errors.Wrap(err, "group delete")
	}
	switch n {
	case 0:
		return ErrGroupNotFound.WithDetail(group)
	case -1:
		return ErrNotOwner.WithDetail(group)
	}
	return nil
}

func (s *RedisGroupStore) Join(ctx context.Context, group, member, instanceID string) error {
	// HSETNX 本身就是成员字段级的 set-if-absent
	added, err := s.rdb.HSetNX(ctx, groupKey(group), member, instanceID).Result()
	if err != nil {
		return errors.Wrap(err, "group join")
	}
	if !added {
		return ErrAlreadyMember.WithDetail(group)
	}
	return nil
}

func (s *RedisGroupStore) Leave(ctx context.Context, group, member string) error {
	return s.rdb.HDel(ctx, groupKey(group), member).Err()
}

func (s *RedisGroupStore) TransferOwner(ctx context.Context, group, newOwner string) error {
	return s.rdb.HSet(ctx, groupKey(group), "owner", newOwner).Err()
}

func (s *RedisGroupStore) Members(ctx context.Context, group string) (map[string]string, error) {
	all, err := s.rdb.HGetAll(ctx, groupKey(group)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "group members")
	}
	return all, nil
}
