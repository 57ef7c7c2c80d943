package archiver

import (
	"context"
	"sync"

	"github.com/Tsukikage7/outboxkit/message"
)

// MemoryProvider 内存归档目标，用于测试和单机场景.
type MemoryProvider struct {
	mu       sync.Mutex
	archived []*message.Message
	err      error
}

// NewMemoryProvider 创建内存归档目标.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// FailWith 注入归档错误，之后的 ArchiveMessages 返回该错误.
// 传入 nil 恢复正常.
func (p *MemoryProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// ArchiveMessages 记录归档的消息.
func (p *MemoryProvider) ArchiveMessages(_ context.Context, msgs []*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	for _, msg := range msgs {
		p.archived = append(p.archived, msg.Clone())
	}

	return nil
}

// Archived 返回已归档消息的快照.
func (p *MemoryProvider) Archived() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*message.Message, len(p.archived))
	copy(out, p.archived)

	return out
}

// Len 返回已归档消息数量.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.archived)
}
