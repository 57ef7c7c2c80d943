package inbox

import (
	"context"
	"sync"
	"time"
)

// Memory 基于内存的收件箱存储.
//
// 适用于单机部署或测试场景.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Request

	entryTTL time.Duration
	now      func() time.Time
	closeCh  chan struct{}
	once     sync.Once
}

// MemoryOption 内存存储配置选项.
type MemoryOption func(*Memory)

// WithEntryTTL 设置去重记录的保留时间.
//
// 超过该时间的记录由后台协程清理，0（默认）表示永久保留.
// 清理后同一请求会被视为首次处理，保留时间需大于最长重投递窗口.
func WithEntryTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.entryTTL = ttl
	}
}

// WithClock 设置时钟函数.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory 创建内存收件箱存储.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*Request),
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

// key 组合三元组键.
func key(requestType, id, contextKey string) string {
	return contextKey + ":" + requestType + ":" + id
}

// Exists 检查请求是否已处理.
func (m *Memory) Exists(ctx context.Context, requestType, id, contextKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key(requestType, id, contextKey)]
	return ok, nil
}

// Add 记录已处理的请求. 重复键静默幂等.
func (m *Memory) Add(ctx context.Context, req *Request, contextKey string) error {
	if req == nil {
		return ErrNilRequest
	}
	if req.ID == "" {
		return ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(req.Type, req.ID, contextKey)
	if _, exists := m.entries[k]; exists {
		return nil
	}

	stored := *req
	stored.ReceivedAt = m.now()
	m.entries[k] = &stored
	return nil
}

// Get 读取请求记录.
func (m *Memory) Get(ctx context.Context, requestType, id, contextKey string) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.entries[key(requestType, id, contextKey)]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *req
	return &clone, nil
}

// Close 停止后台清理协程.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closeCh) })
	return nil
}

// Len 返回当前记录数.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// cleanup 定期清理过期的去重记录.
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
	for k, req := range m.entries {
		if req.ReceivedAt.Before(cutoff) {
			delete(m.entries, k)
		}
	}
}
