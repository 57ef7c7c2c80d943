package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lease 一条租约记录.
type lease struct {
	lockID string
	expiry time.Time
}

// Memory 基于内存的分布式锁提供者.
//
// 适用于单机部署或测试场景. 条件写在互斥锁内完成，
// 语义与远端存储的 compare-and-swap 等价.
type Memory struct {
	mu            sync.Mutex
	leases        map[string]lease
	leaseValidity time.Duration
	now           func() time.Time
}

// MemoryOption 内存锁配置选项.
type MemoryOption func(*Memory)

// WithClock 设置时钟函数，测试时用于模拟租约过期.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMemoryLeaseValidity 设置租约有效期，默认 30s.
func WithMemoryLeaseValidity(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.leaseValidity = d
		}
	}
}

// NewMemory 创建内存锁提供者.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		leases:        make(map[string]lease),
		now:           time.Now,
		leaseValidity: DefaultLeaseValidity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObtainLock 尝试获取资源的租约.
func (m *Memory) ObtainLock(ctx context.Context, resource string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.leases[resource]; ok && existing.expiry.After(now) {
		return "", nil
	}

	lockID := uuid.New().String()
	m.leases[resource] = lease{
		lockID: lockID,
		expiry: now.Add(m.leaseValidity),
	}
	return lockID, nil
}

// ReleaseLock 释放锁.
func (m *Memory) ReleaseLock(ctx context.Context, resource string, lockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[resource]
	if !ok || existing.lockID != lockID {
		return ErrLockNotHeld
	}

	delete(m.leases, resource)
	return nil
}
