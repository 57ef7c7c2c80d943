package messaging

import (
	"context"
	"sync"

	"github.com/Tsukikage7/outboxkit/message"
)

// InMemoryProducer 内存生产者.
//
// 记录所有发送的消息，支持注入发送错误，供测试和单进程场景使用.
//
// 示例:
//
//	producer := messaging.NewInMemoryProducer()
//	_ = producer.Send(ctx, msg)
//	sent := producer.Sent() // 已发送消息的快照
type InMemoryProducer struct {
	mu      sync.Mutex
	sent    []*message.Message
	sendErr error
	closed  bool
}

// NewInMemoryProducer 创建内存生产者.
func NewInMemoryProducer() *InMemoryProducer {
	return &InMemoryProducer{}
}

// FailWith 注入发送错误，之后的 Send 返回该错误.
// 传入 nil 恢复正常.
func (p *InMemoryProducer) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Send 记录消息.
func (p *InMemoryProducer) Send(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProducerClosed
	}
	if msg == nil {
		return ErrNilMessage
	}
	if msg.Header.Topic == "" {
		return ErrEmptyTopic
	}
	if p.sendErr != nil {
		return p.sendErr
	}

	p.sent = append(p.sent, msg.Clone())

	return nil
}

// SendBatch 逐条记录消息，遇到错误即停止.
func (p *InMemoryProducer) SendBatch(ctx context.Context, msgs []*message.Message) error {
	for _, msg := range msgs {
		if err := p.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Sent 返回已发送消息的快照.
func (p *InMemoryProducer) Sent() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*message.Message, len(p.sent))
	copy(out, p.sent)

	return out
}

// SentTo 返回发送到指定主题的消息.
func (p *InMemoryProducer) SentTo(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*message.Message
	for _, msg := range p.sent {
		if msg.Header.Topic == topic {
			out = append(out, msg)
		}
	}

	return out
}

// Len 返回已发送消息数量.
func (p *InMemoryProducer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sent)
}

// Reset 清空记录.
func (p *InMemoryProducer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent = nil
}

// Close 关闭生产者.
func (p *InMemoryProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}
