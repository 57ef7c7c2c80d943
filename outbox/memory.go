package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/Tsukikage7/outboxkit/message"
)

// memoryEntry 内存条目.
type memoryEntry struct {
	msg          *message.Message
	createdAt    time.Time
	dispatchedAt *time.Time
}

// Memory 基于内存的发件箱存储.
//
// 适用于单机部署或测试场景. 注意: 重启后数据会丢失.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	order   []string

	entryTTL time.Duration
	now      func() time.Time
	closeCh  chan struct{}
	once     sync.Once
}

// MemoryOption 内存存储配置选项.
type MemoryOption func(*Memory)

// WithEntryTTL 设置已投递条目的保留时间.
//
// 超过该时间的已投递条目由后台协程清理，0（默认）表示不清理.
// 待投递条目永不自动清理.
func WithEntryTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.entryTTL = ttl
	}
}

// WithClock 设置时钟函数，测试时用于模拟时间推进.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory 创建内存发件箱存储.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
		closeCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.entryTTL > 0 {
		go m.cleanup()
	}

	return m
}

// Add 写入消息. 重复 ID 静默幂等.
func (m *Memory) Add(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if msg.ID == "" {
		return ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[msg.ID]; exists {
		return nil
	}

	m.entries[msg.ID] = &memoryEntry{
		msg:       msg.Clone(),
		createdAt: m.now(),
	}
	m.order = append(m.order, msg.ID)
	return nil
}

// Get 按 ID 读取消息.
func (m *Memory) Get(ctx context.Context, id string) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.msg.Clone(), nil
}

// Entry 按 ID 读取完整条目（含投递元数据），供测试和归档使用.
func (m *Memory) Entry(ctx context.Context, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := &Entry{
		Message:   entry.msg.Clone(),
		CreatedAt: entry.createdAt,
	}
	if entry.dispatchedAt != nil {
		t := *entry.dispatchedAt
		result.DispatchedAt = &t
	}
	return result, nil
}

// OutstandingMessages 返回创建于 olderThan 之前且未投递的消息.
func (m *Memory) OutstandingMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*message.Message
	for _, id := range m.order {
		entry, ok := m.entries[id]
		if !ok || entry.dispatchedAt != nil {
			continue
		}
		if !entry.createdAt.Before(olderThan) {
			continue
		}
		result = append(result, entry.msg.Clone())
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// DispatchedMessages 返回投递于 olderThan 之前的消息.
func (m *Memory) DispatchedMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*message.Message
	for _, id := range m.order {
		entry, ok := m.entries[id]
		if !ok || entry.dispatchedAt == nil {
			continue
		}
		if !entry.dispatchedAt.Before(olderThan) {
			continue
		}
		result = append(result, entry.msg.Clone())
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkDispatched 将指定条目标记为已投递.
func (m *Memory) MarkDispatched(ctx context.Context, ids []string, dispatchedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if entry, ok := m.entries[id]; ok {
			t := dispatchedAt
			entry.dispatchedAt = &t
		}
	}
	return nil
}

// Delete 删除条目.
func (m *Memory) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.entries, id)
	}
	m.compactOrder()
	return nil
}

// Len 返回条目总数.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close 停止后台清理协程.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closeCh) })
	return nil
}

// compactOrder 重建插入顺序索引. 调用方须持有写锁.
func (m *Memory) compactOrder() {
	order := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.entries[id]; ok {
			order = append(order, id)
		}
	}
	m.order = order
}

// cleanup 定期清理过期的已投递条目.
func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeCh:
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

func (m *Memory) doCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.entryTTL)
	for id, entry := range m.entries {
		if entry.dispatchedAt != nil && entry.dispatchedAt.Before(cutoff) {
			delete(m.entries, id)
		}
	}
	m.compactOrder()
}
