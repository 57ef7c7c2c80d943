package claimcheck

import (
	"context"
	"fmt"

	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
)

// DefaultThreshold 默认转存阈值，5KB.
const DefaultThreshold = 5 * 1024

// referencePrefix 转存后占位消息体的前缀.
const referencePrefix = "Claim Check "

// Transformer 大消息体转存转换器.
//
// 发送侧 Wrap：消息体达到阈值时存入 Store，消息体替换为引用占位符.
// 接收侧 Unwrap：凭引用取回原始消息体，默认取回后删除 blob.
type Transformer struct {
	store         Store
	threshold     int
	retainPayload bool
	log           logger.Logger
}

// TransformerOption Transformer 配置选项.
type TransformerOption func(*Transformer)

// WithThreshold 设置转存阈值（字节）. 消息体长度达到该值时触发转存.
// 阈值为 0 表示所有消息都转存.
func WithThreshold(bytes int) TransformerOption {
	return func(t *Transformer) {
		t.threshold = bytes
	}
}

// WithRetainPayload 取回后保留 blob，不删除.
// 同一转存内容被多个消费者取回的场景使用，此时依赖 PurgeExpired 清理.
func WithRetainPayload() TransformerOption {
	return func(t *Transformer) {
		t.retainPayload = true
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) TransformerOption {
	return func(t *Transformer) {
		t.log = log
	}
}

// NewTransformer 创建转存转换器.
//
// 示例:
//
//	tf, err := claimcheck.NewTransformer(store,
//		claimcheck.WithThreshold(256*1024),
//	)
//	wrapped, err := tf.Wrap(ctx, msg)
func NewTransformer(store Store, opts ...TransformerOption) (*Transformer, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	t := &Transformer{
		store:     store,
		threshold: DefaultThreshold,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Wrap 发送侧转换.
//
// 消息体长度达到阈值时存入 Store，返回的副本中消息体替换为
// 引用占位符，引用 ID 同时写入 Header.DataRef 和 Bag 元数据.
// 未达到阈值的消息原样返回.
func (t *Transformer) Wrap(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if len(msg.Body.Bytes) < t.threshold {
		return msg, nil
	}

	id, err := t.store.Put(ctx, msg.Body.Bytes)
	if err != nil {
		return nil, fmt.Errorf("claimcheck: 转存消息体失败: %w", err)
	}

	wrapped := msg.Clone()
	wrapped.Header.DataRef = id
	wrapped.SetBagItem(message.HeaderClaimCheck, id)
	wrapped.Body.Bytes = []byte(referencePrefix + id)

	if t.log != nil {
		t.log.Infof("claimcheck: 消息体已转存, message_id=%s, claim_check_id=%s, size=%d",
			msg.ID, id, len(msg.Body.Bytes))
	}

	return wrapped, nil
}

// Unwrap 接收侧转换.
//
// 消息携带转存引用时取回原始消息体并替换，随后删除 blob
// （WithRetainPayload 时保留）. 未携带引用的消息原样返回.
// blob 已不存在时返回 ErrNotFound，调用方按失败消息处理.
func (t *Transformer) Unwrap(ctx context.Context, msg *message.Message) (*message.Message, error) {
	id := msg.ClaimCheckID()
	if id == "" {
		return msg, nil
	}

	data, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claimcheck: 取回消息体失败, claim_check_id=%s: %w", id, err)
	}

	unwrapped := msg.Clone()
	unwrapped.Body.Bytes = data

	if !t.retainPayload {
		if err := t.store.Delete(ctx, id); err != nil {
			// 删除失败不影响消息处理，留给 PurgeExpired 兜底.
			if t.log != nil {
				t.log.Warnf("claimcheck: 删除 blob 失败, claim_check_id=%s: %v", id, err)
			}
		}
	}

	return unwrapped, nil
}
