package storage

import (
	errs "WPush/tools/errs"
	"context"
)

// 组协议结果哨兵，errors.Is 按 code 匹配
var (
	ErrGroupExists   = errs.NewCodeError(1001, "group already exists")
	ErrGroupNotFound = errs.NewCodeError(1002, "group not found")
	ErrNotOwner      = errs.NewCodeError(1003, "requester is not the group owner")
	ErrAlreadyMember = errs.NewCodeError(1004, "requester already in group")
)

// Directory socket 身份 -> 所属实例 的共享目录。
// 无 TTL：实例崩溃会留下脏条目，直到同一 socket 身份被重新注册覆盖。
type Directory interface {
	RegisterOwner(ctx context.Context, socketID, instanceID string) error
	ResolveOwner(ctx context.Context, socketID string) (instanceID string, ok bool, err error)
	Unregister(ctx context.Context, socketID string) error
}

// GroupStore 组记录协议。记录 = owner 字段 + 每个成员一个 (socketID -> instanceID) 字段；
// 组存在 iff 记录存在；owner 永远同时是成员键。
type GroupStore interface {
	// Create set-if-absent：已存在返回 ErrGroupExists，且不改动既有记录
	Create(ctx context.Context, group, owner, instanceID string) error
	// Delete 不存在返回 ErrGroupNotFound；requester 非 owner 返回 ErrNotOwner，什么都不删
	Delete(ctx context.Context, group, requester string) error
	// Join 已是成员返回 ErrAlreadyMember，成员数不变
	Join(ctx context.Context, group, member, instanceID string) error
	// Leave 无条件移除，删不存在的成员也算成功
	Leave(ctx context.Context, group, member string) error
	// TransferOwner 无条件改写 owner（仅重连流程使用）
	TransferOwner(ctx context.Context, group, newOwner string) error
	// Members 返回完整成员映射（含 owner 伪字段）；组不存在返回空映射
	Members(ctx context.Context, group string) (map[string]string, error)
}
