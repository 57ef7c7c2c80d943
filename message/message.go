// Package message 定义消息信封结构.
//
// Message 是整个工具包的通用消息单元：存入发件箱（outbox）、
// 投递到消息中间件、以及收件箱（inbox）去重时使用的都是同一个结构.
//
// 构造示例:
//
//	msg := message.New("orders", message.TypeEvent, []byte(`{"id":"123"}`))
//	msg.Header.CorrelationID = "abc-123"
//	msg.Header.PartitionKey = "order-123"
package message

import "time"

// Type 消息类型.
type Type string

const (
	// TypeCommand 命令消息，点对点投递.
	TypeCommand Type = "command"

	// TypeEvent 事件消息，发布订阅投递.
	TypeEvent Type = "event"

	// TypeDocument 文档消息，传输完整的数据快照.
	TypeDocument Type = "document"
)

// Header 中预定义的元数据键.
const (
	// HeaderClaimCheck 超大消息体被转存后，引用 ID 记录在该键下.
	HeaderClaimCheck = "claim_check_id"
)

// Header 消息头.
//
// 承载路由和投递元数据，随消息一起持久化到发件箱.
type Header struct {
	// Topic 消息主题（路由键），投递目的地.
	Topic string `json:"topic"`

	// MessageType 消息类型: command、event、document.
	MessageType Type `json:"message_type"`

	// Timestamp 消息创建时间.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID 关联 ID，用于跨服务追踪一次业务请求.
	CorrelationID string `json:"correlation_id,omitempty"`

	// ReplyTo 应答主题（命令消息可选）.
	ReplyTo string `json:"reply_to,omitempty"`

	// ContentType 消息体内容类型，如 application/json.
	ContentType string `json:"content_type,omitempty"`

	// HandledCount 已处理次数.
	// 重新投递时复用同一消息 ID 并递增该计数.
	HandledCount int `json:"handled_count"`

	// DeliveryTag 中间件投递标签（接收侧由消费者填充）.
	DeliveryTag uint64 `json:"delivery_tag,omitempty"`

	// PartitionKey 分区键，相同键的消息路由到同一分区.
	PartitionKey string `json:"partition_key,omitempty"`

	// DataRef 消息体被转存到外部存储时的引用 ID.
	// 与 Bag 中的 HeaderClaimCheck 键同步维护.
	DataRef string `json:"data_ref,omitempty"`

	// Bag 自定义元数据.
	Bag map[string]string `json:"bag,omitempty"`
}

// Body 消息体.
type Body struct {
	// Bytes 消息体原始字节.
	Bytes []byte `json:"bytes"`

	// ContentType 内容类型.
	ContentType string `json:"content_type,omitempty"`
}

// Message 消息信封.
//
// ID 由调用方分配且全局唯一；同一逻辑消息的重新投递复用同一 ID.
// 信封本身不可变：包内操作只读取字段，转换（如转存大消息体）
// 通过 Clone 产生副本后修改.
type Message struct {
	// ID 消息唯一标识.
	ID string `json:"id"`

	// Header 消息头.
	Header Header `json:"header"`

	// Body 消息体.
	Body Body `json:"body"`
}

// New 创建消息.
func New(topic string, msgType Type, body []byte) *Message {
	return &Message{
		Header: Header{
			Topic:       topic,
			MessageType: msgType,
			Timestamp:   time.Now(),
		},
		Body: Body{Bytes: body},
	}
}

// Clone 返回消息的深拷贝.
func (m *Message) Clone() *Message {
	clone := *m

	if m.Header.Bag != nil {
		clone.Header.Bag = make(map[string]string, len(m.Header.Bag))
		for k, v := range m.Header.Bag {
			clone.Header.Bag[k] = v
		}
	}

	if m.Body.Bytes != nil {
		clone.Body.Bytes = make([]byte, len(m.Body.Bytes))
		copy(clone.Body.Bytes, m.Body.Bytes)
	}

	return &clone
}

// SetBagItem 设置自定义元数据.
func (m *Message) SetBagItem(key, value string) {
	if m.Header.Bag == nil {
		m.Header.Bag = make(map[string]string)
	}
	m.Header.Bag[key] = value
}

// BagItem 读取自定义元数据.
func (m *Message) BagItem(key string) (string, bool) {
	if m.Header.Bag == nil {
		return "", false
	}
	v, ok := m.Header.Bag[key]
	return v, ok
}

// ClaimCheckID 返回转存引用 ID，未转存时返回空字符串.
func (m *Message) ClaimCheckID() string {
	if m.Header.DataRef != "" {
		return m.Header.DataRef
	}
	if id, ok := m.BagItem(HeaderClaimCheck); ok {
		return id
	}
	return ""
}
