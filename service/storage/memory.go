package storage

import (
	"context"
	"sync"
)

// MemStore 是 Directory + GroupStore 的内存孪生实现，
// 语义与 redis 实现逐条对齐，供单机开发和单测使用。
type MemStore struct {
	mu     sync.RWMutex
	owners map[string]string            // socketID -> instanceID
	groups map[string]map[string]string // group -> (owner/member -> value)
}

func NewMemStore() *MemStore {
	return &MemStore{
		owners: make(map[string]string),
		groups: make(map[string]map[string]string),
	}
}

// ===== Directory =====

func (m *MemStore) RegisterOwner(ctx context.Context, socketID, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[socketID] = instanceID
	return nil
}

func (m *MemStore) ResolveOwner(ctx context.Context, socketID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.owners[socketID]
	return inst, ok, nil
}

func (m *MemStore) Unregister(ctx context.Context, socketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, socketID)
	return nil
}

// ===== GroupStore =====

func (m *MemStore) Create(ctx context.Context, group, owner, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[group]; exists {
		return ErrGroupExists.WithDetail(group)
	}
	m.groups[group] = map[string]string{
		"owner": owner,
		owner:   instanceID,
	}
	return nil
}

func (m *MemStore) Delete(ctx context.Context, group, requester string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.groups[group]
	if !exists {
		return ErrGroupNotFound.WithDetail(group)
	}
	if rec["owner"] != requester {
		return ErrNotOwner.WithDetail(group)
	}
	delete(m.groups, group)
	return nil
}

func (m *MemStore) Join(ctx context.Context, group, member, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.groups[group]
	if rec == nil {
		rec = make(map[string]string)
		m.groups[group] = rec
	}
	if _, in := rec[member]; in {
		return ErrAlreadyMember.WithDetail(group)
	}
	rec[member] = instanceID
	return nil
}

func (m *MemStore) Leave(ctx context.Context, group, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.groups[group]; rec != nil {
		delete(rec, member)
	}
	return nil
}

func (m *MemStore) TransferOwner(ctx context.Context, group, newOwner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.groups[group]
	if rec == nil {
		rec = make(map[string]string)
		m.groups[group] = rec
	}
	rec["owner"] = newOwner
	return nil
}

func (m *MemStore) Members(ctx context.Context, group string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.groups[group]))
	for k, v := range m.groups[group] {
		out[k] = v
	}
	return out, nil
}
