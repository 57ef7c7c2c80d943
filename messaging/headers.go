package messaging

import (
	"strconv"

	"github.com/Tsukikage7/outboxkit/message"
)

// 消息头传输键.
//
// 生产者把信封元数据编码到中间件消息头，接收侧凭同样的键还原.
const (
	HeaderMessageID     = "message_id"
	HeaderMessageType   = "message_type"
	HeaderTimestamp     = "timestamp"
	HeaderCorrelationID = "correlation_id"
	HeaderReplyTo       = "reply_to"
	HeaderContentType   = "content_type"
	HeaderHandledCount  = "handled_count"
	HeaderPartitionKey  = "partition_key"
	HeaderDataRef       = "data_ref"
)

// wireHeaders 把消息信封元数据编码为中间件消息头.
//
// Bag 中的自定义元数据原样并入，与预定义键冲突时以预定义键为准.
func wireHeaders(msg *message.Message) map[string]string {
	headers := make(map[string]string, len(msg.Header.Bag)+8)

	for k, v := range msg.Header.Bag {
		headers[k] = v
	}

	headers[HeaderMessageID] = msg.ID
	headers[HeaderMessageType] = string(msg.Header.MessageType)
	headers[HeaderTimestamp] = msg.Header.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	headers[HeaderHandledCount] = strconv.Itoa(msg.Header.HandledCount)

	if msg.Header.CorrelationID != "" {
		headers[HeaderCorrelationID] = msg.Header.CorrelationID
	}
	if msg.Header.ReplyTo != "" {
		headers[HeaderReplyTo] = msg.Header.ReplyTo
	}
	if msg.Header.ContentType != "" {
		headers[HeaderContentType] = msg.Header.ContentType
	}
	if msg.Header.PartitionKey != "" {
		headers[HeaderPartitionKey] = msg.Header.PartitionKey
	}
	if msg.Header.DataRef != "" {
		headers[HeaderDataRef] = msg.Header.DataRef
	}

	return headers
}

// partitionKey 返回分区键，未设置时退回消息 ID.
func partitionKey(msg *message.Message) string {
	if msg.Header.PartitionKey != "" {
		return msg.Header.PartitionKey
	}
	return msg.ID
}
