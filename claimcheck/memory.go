package claimcheck

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory 基于内存的转存存储，用于测试和单机场景.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	now   func() time.Time
}

type memoryBlob struct {
	data      []byte
	createdAt time.Time
}

// MemoryOption Memory 配置选项.
type MemoryOption func(*Memory)

// WithClock 设置时钟函数，用于测试.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory 创建内存转存存储.
//
// 示例:
//
//	store := claimcheck.NewMemory()
//	id, err := store.Put(ctx, payload)
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		blobs: make(map[string]memoryBlob),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Put 存储 blob，返回引用 ID.
func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	id := uuid.NewString()

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[id] = memoryBlob{data: buf, createdAt: m.now()}

	return id, nil
}

// Get 按引用 ID 读取 blob.
func (m *Memory) Get(_ context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	buf := make([]byte, len(blob.data))
	copy(buf, blob.data)

	return buf, nil
}

// Delete 删除 blob. 不存在的 ID 忽略.
func (m *Memory) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, id)

	return nil
}

// Exists 检查 blob 是否存在.
func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[id]

	return ok, nil
}

// PurgeExpired 清理存放超过 olderThan 的孤儿 blob.
func (m *Memory) PurgeExpired(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0

	for id, blob := range m.blobs {
		if blob.createdAt.Before(cutoff) {
			delete(m.blobs, id)
			purged++
		}
	}

	return purged, nil
}

// Len 返回当前 blob 数量，用于测试断言.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blobs)
}
